package audit

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benaskins/rally/internal/fault"
)

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var entries []Entry
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("Unmarshal %q: %v", line, err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestLoggerWritesEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := NewLogger(path)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer l.Close()

	ts := time.Date(2026, 10, 19, 10, 30, 0, 0, time.UTC)

	l.Log(Entry{
		Timestamp: ts,
		Action:    ActionKeyWrite,
		Actor:     "cli",
	})
	l.Log(Entry{
		Timestamp: ts.Add(time.Minute),
		Action:    ActionRelay,
		Actor:     "daemon",
		Method:    "GET",
		Host:      "rally1.rallydev.com",
		Status:    404,
	})

	entries := readEntries(t, path)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Action != ActionKeyWrite {
		t.Errorf("expected key_write, got %v", entries[0].Action)
	}
	if entries[0].Actor != "cli" {
		t.Errorf("expected cli, got %q", entries[0].Actor)
	}
	if !entries[0].Timestamp.Equal(ts) {
		t.Errorf("expected %v, got %v", ts, entries[0].Timestamp)
	}
	if entries[1].Action != ActionRelay {
		t.Errorf("expected relay, got %v", entries[1].Action)
	}
	if entries[1].Host != "rally1.rallydev.com" || entries[1].Status != 404 {
		t.Errorf("unexpected relay entry: %+v", entries[1])
	}
}

func TestLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	l1, _ := NewLogger(path)
	l1.Log(Entry{Action: ActionKeyWrite})
	l1.Close()

	l2, _ := NewLogger(path)
	l2.Log(Entry{Action: ActionKeyRead})
	l2.Close()

	if n := len(readEntries(t, path)); n != 2 {
		t.Fatalf("expected 2 entries, got %d", n)
	}
}

func TestLoggerDefaultTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, _ := NewLogger(path)
	defer l.Close()

	before := time.Now().UTC()
	l.Log(Entry{Action: ActionKeyRead})
	after := time.Now().UTC()

	e := readEntries(t, path)[0]
	if e.Timestamp.Before(before) || e.Timestamp.After(after) {
		t.Errorf("timestamp %v not between %v and %v", e.Timestamp, before, after)
	}
}

func TestLoggerCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "audit.log")
	l, err := NewLogger(path)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer l.Close()

	if l.Path() != path {
		t.Errorf("Path = %q, want %q", l.Path(), path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected log file to exist: %v", err)
	}
}

func TestLoggerFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, _ := NewLogger(path)
	l.Close()

	info, _ := os.Stat(path)
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected 0600, got %o", perm)
	}
}

func TestNilLoggerDiscards(t *testing.T) {
	var l *Logger
	if err := l.Log(Entry{Action: ActionKeyRead}); err != nil {
		t.Errorf("Log on nil logger: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("Close on nil logger: %v", err)
	}
}

func TestRelayEntry(t *testing.T) {
	e := RelayEntry("cli", "GET", "https://rally1.rallydev.com/slm/webservice/v2.0/defect", 200, nil)
	if e.Action != ActionRelay || e.Host != "rally1.rallydev.com" || e.Status != 200 {
		t.Errorf("unexpected entry: %+v", e)
	}
	if e.Kind != "" || e.Error != "" {
		t.Errorf("expected no error fields, got %+v", e)
	}

	err := fault.New(fault.TransportError, "relay send", errors.New("connection refused"))
	e = RelayEntry("daemon", "POST", "https://rally1.rallydev.com/x", 0, err)
	if e.Kind != string(fault.TransportError) {
		t.Errorf("Kind = %q, want transport_error", e.Kind)
	}
	if e.Error == "" {
		t.Error("expected error text")
	}
}
