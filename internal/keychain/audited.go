package keychain

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/benaskins/rally/internal/audit"
	"github.com/benaskins/rally/internal/fault"
)

// KeyMetadata records when the API key was stored. It never holds the value.
type KeyMetadata struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MetadataStore persists KeyMetadata to a JSON file.
type MetadataStore struct {
	mu   sync.RWMutex
	path string
	meta *KeyMetadata
}

// NewMetadataStore loads or creates a metadata file.
func NewMetadataStore(path string) (*MetadataStore, error) {
	ms := &MetadataStore{path: path}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var meta KeyMetadata
		if jsonErr := json.Unmarshal(data, &meta); jsonErr != nil {
			slog.Warn("corrupt key metadata, starting fresh", "path", path, "error", jsonErr)
		} else {
			ms.meta = &meta
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("reading key metadata: %w", err)
	}

	return ms, nil
}

// Get returns a copy of the metadata, or nil if no key has been recorded.
func (ms *MetadataStore) Get() *KeyMetadata {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	if ms.meta == nil {
		return nil
	}
	cp := *ms.meta
	return &cp
}

// Touch marks the key as written at now.
func (ms *MetadataStore) Touch(now time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.meta == nil {
		ms.meta = &KeyMetadata{CreatedAt: now}
	}
	ms.meta.UpdatedAt = now
	return ms.save()
}

// Clear forgets the metadata and removes the file.
func (ms *MetadataStore) Clear() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.meta = nil
	if err := os.Remove(ms.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (ms *MetadataStore) save() error {
	data, err := json.MarshalIndent(ms.meta, "", "  ")
	if err != nil {
		return err
	}
	tmpPath := ms.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, ms.path)
}

// AuditedCredential wraps a Credential with audit logging and metadata
// tracking.
type AuditedCredential struct {
	inner    *Credential
	audit    *audit.Logger
	metadata *MetadataStore
	actor    string // "cli" or "daemon"
}

// NewAuditedCredential wraps cred. auditLog may be nil.
func NewAuditedCredential(cred *Credential, auditLog *audit.Logger, metadata *MetadataStore, actor string) *AuditedCredential {
	return &AuditedCredential{
		inner:    cred,
		audit:    auditLog,
		metadata: metadata,
		actor:    actor,
	}
}

func (c *AuditedCredential) Set(value string) error {
	err := c.inner.Set(value)
	c.record(audit.ActionKeyWrite, err)
	if err != nil {
		return err
	}

	if err := c.metadata.Touch(time.Now().UTC()); err != nil {
		slog.Warn("saving key metadata failed", "error", err)
	}
	return nil
}

func (c *AuditedCredential) Get() (string, bool, error) {
	val, ok, err := c.inner.Get()
	c.record(audit.ActionKeyRead, err)
	return val, ok, err
}

func (c *AuditedCredential) Delete() error {
	err := c.inner.Delete()
	c.record(audit.ActionKeyDelete, err)
	if err != nil {
		return err
	}

	if err := c.metadata.Clear(); err != nil {
		slog.Warn("clearing key metadata failed", "error", err)
	}
	return nil
}

// Metadata returns the metadata store for direct access.
func (c *AuditedCredential) Metadata() *MetadataStore {
	return c.metadata
}

// record is best-effort: a failure to log does not fail the operation.
func (c *AuditedCredential) record(action audit.Action, opErr error) {
	entry := audit.Entry{Action: action, Actor: c.actor}
	if opErr != nil {
		entry.Kind = string(fault.KindOf(opErr))
		entry.Error = opErr.Error()
	}
	if err := c.audit.Log(entry); err != nil {
		slog.Warn("audit log write failed", "action", action, "error", err)
	}
}
