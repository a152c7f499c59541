package coordinator

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/arxiv/fulltext/internal/domain"
)

// Broker publishes a task onto the queue. The only implementation in
// this module talks to nsqd's HTTP `/pub` endpoint, the same way the
// teacher's bucket_reader enqueues work (see bucket_reader/bucket_reader.go).
type Broker interface {
	Publish(topic string, body []byte) error
}

// NsqdHTTPBroker publishes single messages to nsqd over its HTTP
// interface rather than the TCP producer protocol — this keeps the
// front-tier process dependency-light, since it only ever publishes and
// never consumes.
type NsqdHTTPBroker struct {
	NsqdHTTPAddress string
	httpClient      *http.Client
}

func NewNsqdHTTPBroker(nsqdHTTPAddress string) *NsqdHTTPBroker {
	return &NsqdHTTPBroker{NsqdHTTPAddress: nsqdHTTPAddress, httpClient: &http.Client{}}
}

func (b *NsqdHTTPBroker) Publish(topic string, body []byte) error {
	url := fmt.Sprintf("%s/pub?topic=%s", b.NsqdHTTPAddress, topic)
	resp, err := b.httpClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return domain.WrapError(domain.ErrTaskCreationFailed, "publishing to "+url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.NewError(domain.ErrTaskCreationFailed, fmt.Sprintf("nsqd returned status %d on publish to %s", resp.StatusCode, topic))
	}
	return nil
}
