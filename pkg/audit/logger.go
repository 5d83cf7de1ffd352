// Package audit records one structured event per finalized evaluation. The
// trail is for operators and reviewers; it is never part of the proof hash,
// so event IDs and timestamps are free to vary between runs.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/provara/engine/pkg/contribution"
)

// Event is a structured audit record for one finalized evaluation.
type Event struct {
	ID             string              `json:"id"`
	ContributionID string              `json:"contribution_id"`
	UserID         string              `json:"user_id"`
	Status         contribution.Status `json:"status"`
	Verified       bool                `json:"verified"`
	FlagCount      int                 `json:"flag_count"`
	TokenAward     uint64              `json:"token_award"`
	ProofHash      string              `json:"proof_hash"`
	Overridden     bool                `json:"overridden,omitempty"`
	Timestamp      time.Time           `json:"timestamp"`
}

// Logger records audit events. Implementations must be safe for concurrent
// use; a failed write must never fail the evaluation that produced it.
type Logger interface {
	Record(ctx context.Context, event Event) error
}

// NopLogger discards every event.
type NopLogger struct{}

func (NopLogger) Record(context.Context, Event) error { return nil }

// logger writes one JSON line per event to a configurable writer.
type logger struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewLogger creates a Logger writing JSON lines to os.Stdout.
func NewLogger() Logger {
	return NewLoggerWithWriter(os.Stdout)
}

// NewLoggerWithWriter creates a Logger writing to the given writer.
// This allows injection for testing and custom sinks.
func NewLoggerWithWriter(w io.Writer) Logger {
	if w == nil {
		w = os.Stdout
	}
	return &logger{writer: w}
}

func (l *logger) Record(_ context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.writer.Write(data)
	return err
}
