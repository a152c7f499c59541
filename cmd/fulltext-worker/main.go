// Command fulltext-worker is the worker-tier process (spec.md §5): a
// pool of NSQ consumers that drain the extraction topic and run the
// pipeline in internal/worker. Grounded directly on the teacher's
// apps/apt_prepare, including the DisableAutoResponse + explicit
// Finish/Requeue handling after the pipeline completes, which is the
// Go-idiomatic rendering of Celery's acks_late=true.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"time"

	docker "github.com/docker/docker/client"
	"github.com/nsqio/go-nsq"

	"github.com/arxiv/fulltext/internal/config"
	"github.com/arxiv/fulltext/internal/coordinator"
	"github.com/arxiv/fulltext/internal/domain"
	"github.com/arxiv/fulltext/internal/extractor"
	flogging "github.com/arxiv/fulltext/internal/logging"
	"github.com/arxiv/fulltext/internal/resultstore"
	"github.com/arxiv/fulltext/internal/store"
	"github.com/arxiv/fulltext/internal/wiring"
	"github.com/arxiv/fulltext/internal/worker"
)

func main() {
	channel := flag.String("channel", "fulltext-worker", "NSQ channel to consume on")
	flag.Parse()

	cfg, err := config.FromEnvironment()
	if err != nil {
		panic(err)
	}
	log := flogging.Init(flogging.Config{LogDirectory: cfg.LogDirectory, LogToStderr: cfg.LogToStderr, LogLevel: cfg.LogLevel})
	log.Info("fulltext-worker started")

	s := store.New(cfg.StorageVolume, log)

	results, err := resultstore.Open(cfg.ResultBackendPath)
	if err != nil {
		log.Fatalf("opening result backend: %v", err)
	}
	defer results.Close()

	dockerClient, err := docker.NewClientWithOpts(docker.WithHost(cfg.SandboxHost), docker.WithAPIVersionNegotiation())
	if err != nil {
		log.Fatalf("creating docker client: %v", err)
	}
	sandbox := extractor.New(dockerClient, cfg.ExtractorImage, cfg.WorkDir, cfg.MountDir, log)

	sources := wiring.Sources(cfg, log)

	pipeline := worker.New(s, results, sources, sandbox, cfg.WorkDir, cfg.ExtractorImage, log)

	nsqConfig := nsq.NewConfig()
	nsqConfig.MaxInFlight = 1 // prefetch=1, per spec.md §5
	consumer, err := nsq.NewConsumer(coordinator.ExtractionTopic, *channel, nsqConfig)
	if err != nil {
		log.Fatalf("creating NSQ consumer: %v", err)
	}
	consumer.SetLogger(nil, nsq.LogLevelWarning)
	consumer.AddHandler(&handler{pipeline: pipeline, results: results, log: log})

	if err := consumer.ConnectToNSQLookupd(cfg.NsqLookupdAddress); err != nil {
		log.Fatalf("connecting to nsqlookupd: %v", err)
	}

	<-consumer.StopChan
}

type handler struct {
	pipeline *worker.Pipeline
	results  *resultstore.Store
	log      interface {
		Errorf(string, ...interface{})
		Warningf(string, ...interface{})
	}
}

// HandleMessage runs the extract pipeline for one task, acknowledging
// only after it completes (acks_late=true). Malformed payloads are
// finished immediately since retrying them can never succeed.
func (h *handler) HandleMessage(message *nsq.Message) error {
	message.DisableAutoResponse()

	var msg coordinator.TaskMessage
	if err := json.Unmarshal(message.Body, &msg); err != nil {
		h.log.Errorf("discarding malformed task message: %v", err)
		message.Finish()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	_, err := h.pipeline.Extract(ctx, msg.TaskID, msg.Identifier, msg.Bucket, msg.Version, msg.Owner, msg.Token)
	if err != nil {
		switch domain.KindOf(err) {
		case domain.ErrNoSuchTask:
			// The coordinator never wrote the pre-created record: nothing
			// to retry towards.
			message.Finish()
		default:
			h.log.Warningf("task %s failed, requeueing: %v", msg.TaskID, err)
			message.Requeue(5 * time.Minute)
		}
		return nil
	}

	message.Finish()
	return nil
}
