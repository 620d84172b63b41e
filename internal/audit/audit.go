// Package audit provides append-only structured logging for API key access
// and relayed requests.
//
// Entries are written to ~/.rally/audit.log as newline-delimited JSON. The
// key value and request/response bodies are never recorded.
package audit

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/benaskins/rally/internal/fault"
)

// Action describes what happened.
type Action string

const (
	ActionKeyRead   Action = "key_read"
	ActionKeyWrite  Action = "key_write"
	ActionKeyDelete Action = "key_delete"
	ActionRelay     Action = "relay"
)

// Entry is a single audit log record.
type Entry struct {
	Timestamp time.Time `json:"ts"`
	Action    Action    `json:"action"`
	Actor     string    `json:"actor,omitempty"` // "cli" or "daemon"
	Method    string    `json:"method,omitempty"`
	Host      string    `json:"host,omitempty"`
	Status    int       `json:"status,omitempty"`
	Kind      string    `json:"kind,omitempty"` // failure kind, see internal/fault
	Error     string    `json:"error,omitempty"`
}

// RelayEntry builds the record for one relayed call. status is 0 when no
// response arrived.
func RelayEntry(actor, method, rawURL string, status int, err error) Entry {
	e := Entry{Action: ActionRelay, Actor: actor, Method: method, Status: status}
	if u, parseErr := url.Parse(rawURL); parseErr == nil {
		e.Host = u.Host
	}
	if err != nil {
		e.Kind = string(fault.KindOf(err))
		e.Error = err.Error()
	}
	return e
}

// Logger writes audit entries to an append-only file. A nil *Logger
// discards everything.
type Logger struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewLogger creates or opens an audit log file for appending, creating the
// parent directory if needed.
func NewLogger(path string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating audit dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return &Logger{file: f, path: path}, nil
}

// Log writes an audit entry.
func (l *Logger) Log(entry Entry) error {
	if l == nil {
		return nil
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling audit entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit entry: %w", err)
	}
	return nil
}

// Path returns the file the logger appends to.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Close closes the audit log file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	return l.file.Close()
}
