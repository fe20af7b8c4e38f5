// Package audit records every atlas mutation as an append-only structured
// log entry carrying before/after state and a reason string.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Action is the mutation category.
type Action string

const (
	ActionAdd        Action = "ADD"
	ActionUpdate     Action = "UPDATE"
	ActionDelete     Action = "DELETE"
	ActionQuarantine Action = "QUARANTINE"
	ActionRestore    Action = "RESTORE"
	ActionPromote    Action = "PROMOTE"
)

// Entry is one audit record. Before/After hold the full serialized state on
// either side of the mutation so downstream consumers can reconstruct it
// without access to the store.
type Entry struct {
	ID        string          `json:"id"`
	Entity    string          `json:"entity"` // e.g. "boundary:portland-or:council-1"
	Action    Action          `json:"action"`
	Before    json.RawMessage `json:"before,omitempty"`
	After     json.RawMessage `json:"after,omitempty"`
	Reason    string          `json:"reason"`
	Actor     string          `json:"actor,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Logger records mutation entries.
type Logger interface {
	Record(ctx context.Context, action Action, entity string, before, after any, reason string) error
}

// logger writes JSON lines to an injected writer.
type logger struct {
	mu     sync.Mutex
	writer io.Writer
	clock  func() time.Time
}

// NewLogger creates a Logger writing to os.Stdout.
func NewLogger() Logger {
	return NewLoggerWithWriter(os.Stdout)
}

// NewLoggerWithWriter creates a Logger writing to the given writer.
// Injection point for tests and file sinks.
func NewLoggerWithWriter(w io.Writer) Logger {
	if w == nil {
		w = os.Stdout
	}
	return &logger{writer: w, clock: time.Now}
}

func (l *logger) Record(ctx context.Context, action Action, entity string, before, after any, reason string) error {
	_ = ctx

	entry := Entry{
		ID:        uuid.New().String(),
		Entity:    entity,
		Action:    action,
		Reason:    reason,
		Timestamp: l.clock(),
	}
	var err error
	if before != nil {
		if entry.Before, err = json.Marshal(before); err != nil {
			return err
		}
	}
	if after != nil {
		if entry.After, err = json.Marshal(after); err != nil {
			return err
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	// Prefix for easy filtering alongside application logs.
	_, err = l.writer.Write(append([]byte("AUDIT: "), append(line, '\n')...))
	return err
}
