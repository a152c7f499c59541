// Package logging wires up leveled, rotating-file logging for every
// fulltext process, grounded directly on the teacher's
// bagman/logger.go: op/go-logging for levels and formatting, backed by
// mipearson/rfw so log files survive external rotation.
package logging

import (
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"

	"github.com/mipearson/rfw"
	"github.com/op/go-logging"
)

// Config is the subset of internal/config.Config the logger needs. It
// is duplicated here rather than imported, so this package does not
// depend on internal/config.
type Config struct {
	LogDirectory string
	LogToStderr  bool
	LogLevel     logging.Level
}

// Init creates and returns a logger suitable for one process. The
// module name is derived from os.Args[0], exactly as the teacher does,
// so that fulltext-api and fulltext-worker get distinctly named log
// files and loggers even though they share this package.
func Init(cfg Config) *logging.Logger {
	processName := path.Base(os.Args[0])
	filename := fmt.Sprintf("%s.log", processName)
	filename = filepath.Join(absLogDirectory(cfg.LogDirectory), filename)
	if cfg.LogDirectory != "" {
		_ = os.MkdirAll(cfg.LogDirectory, 0755)
	}
	writer := getRotatingFileWriter(filename)

	log := logging.MustGetLogger(processName)
	format := logging.MustStringFormatter("%{time} [%{level}] %{module} %{message}")
	logging.SetFormatter(format)
	logging.SetLevel(cfg.LogLevel, processName)

	logBackend := logging.NewLogBackend(writer, "", 0)
	if cfg.LogToStderr {
		stderrBackend := logging.NewLogBackend(os.Stderr, "", 0)
		stderrBackend.Color = true
		logging.SetBackend(logBackend, stderrBackend)
	} else {
		logging.SetBackend(logBackend)
	}
	return log
}

func absLogDirectory(dir string) string {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		panic(fmt.Sprintf("cannot resolve absolute path for log directory %q: %v", dir, err))
	}
	return absPath
}

func getRotatingFileWriter(filename string) *rfw.Writer {
	writer, err := rfw.Open(filename, 0644)
	if err != nil {
		panic(fmt.Sprintf("cannot open log file at %s: %v", filename, err))
	}
	return writer
}

// Discard returns a logger that writes to /dev/null, for tests.
func Discard(module string) *logging.Logger {
	log := logging.MustGetLogger(module)
	devnull := logging.NewLogBackend(ioutil.Discard, "", 0)
	logging.SetBackend(devnull)
	logging.SetLevel(logging.INFO, module)
	return log
}
