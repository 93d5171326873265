// Package dlq captures datapoints that could not be produced to an
// external sink (the Kafka fan-out) once its circuit breaker has opened,
// as an audit trail for the one lossy-fan-out path the hub otherwise keeps
// a record of.
package dlq

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sheinberglab/dserv/pkg/dpoint"
)

type Entry struct {
	Varname   string    `json:"name"`
	Timestamp int64     `json:"timestamp"`
	Reason    string    `json:"reason"`
	DroppedAt time.Time `json:"dropped_at"`
}

type Config struct {
	Directory string
	QueueSize int
}

// Queue is a bounded in-memory buffer of dropped entries, optionally
// persisted as newline-delimited JSON to Directory.
type Queue struct {
	cfg Config
	log *logrus.Logger

	mu      sync.Mutex
	entries []Entry
	file    *os.File
	writer  *bufio.Writer
}

func New(cfg Config, log *logrus.Logger) (*Queue, error) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	q := &Queue{cfg: cfg, log: log}
	if cfg.Directory != "" {
		if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(cfg.Directory+"/dlq.jsonl", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		q.file = f
		q.writer = bufio.NewWriter(f)
	}
	return q, nil
}

// Put records dp as dropped for reason, evicting the oldest in-memory
// entry once the queue is full.
func (q *Queue) Put(dp dpoint.Datapoint, reason string) {
	entry := Entry{Varname: dp.Varname, Timestamp: dp.Timestamp, Reason: reason, DroppedAt: time.Now()}

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) >= q.cfg.QueueSize {
		q.entries = q.entries[1:]
	}
	q.entries = append(q.entries, entry)

	if q.writer != nil {
		data, _ := json.Marshal(entry)
		q.writer.Write(data)
		q.writer.WriteByte('\n')
		q.writer.Flush()
	}
}

// Entries returns a snapshot of the currently buffered dropped entries.
func (q *Queue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, len(q.entries))
	copy(out, q.entries)
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.file == nil {
		return nil
	}
	q.writer.Flush()
	return q.file.Close()
}
