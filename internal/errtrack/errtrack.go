// Package errtrack collects asynchronous failures that have no caller to
// return to.
package errtrack

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"wallet-notifier/internal/observability"
)

// DefaultSinkTimeout bounds one sink delivery.
const DefaultSinkTimeout = 5 * time.Second

// DefaultKeep is the number of recent reports kept in memory.
const DefaultKeep = 50

// Report describes one tracked failure.
type Report struct {
	Source  string            `json:"source"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	Time    time.Time         `json:"time"`
}

// Sink receives reports.
type Sink interface {
	Report(ctx context.Context, r Report) error
}

// Tracker logs, counts and forwards failures to its sinks.
type Tracker struct {
	logger  *log.Logger
	sinks   []Sink
	timeout time.Duration

	mu     sync.Mutex
	recent []Report
	keep   int
}

// New creates a Tracker.
func New(logger *log.Logger, sinks ...Sink) *Tracker {
	if logger == nil {
		logger = log.New(os.Stdout, "[errtrack] ", log.LstdFlags)
	}
	return &Tracker{
		logger:  logger,
		sinks:   sinks,
		timeout: DefaultSinkTimeout,
		keep:    DefaultKeep,
	}
}

// Track records err under source. Nil errors are ignored. Delivery outlives
// ctx cancellation so that failures seen during teardown are not lost.
func (t *Tracker) Track(ctx context.Context, source string, err error, fields map[string]string) {
	if t == nil || err == nil {
		return
	}

	r := Report{
		Source:  source,
		Message: err.Error(),
		Fields:  fields,
		Time:    time.Now().UTC(),
	}

	t.logger.Printf("%s: %v %v", source, err, fields)
	observability.RecordTrackedError(source)
	t.remember(r)

	if len(t.sinks) == 0 {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.timeout)
	defer cancel()
	for _, s := range t.sinks {
		if err := s.Report(sctx, r); err != nil {
			t.logger.Printf("sink: %v", err)
		}
	}
}

func (t *Tracker) remember(r Report) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recent = append(t.recent, r)
	if len(t.recent) > t.keep {
		t.recent = t.recent[len(t.recent)-t.keep:]
	}
}

// Recent returns the latest reports, oldest first.
func (t *Tracker) Recent() []Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Report(nil), t.recent...)
}
