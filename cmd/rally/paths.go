package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/benaskins/rally/internal/audit"
	"github.com/benaskins/rally/internal/config"
	"github.com/benaskins/rally/internal/keychain"
)

// rallyHome returns ~/.rally, creating it if needed.
func rallyHome() (string, error) {
	dir, err := config.Home()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	return dir, nil
}

func socketPath() string {
	if cfg != nil && cfg.Socket != "" {
		return cfg.Socket
	}
	dir, err := config.Home()
	if err != nil {
		return "/tmp/rally.sock"
	}
	return filepath.Join(dir, "rally.sock")
}

// session holds the audited credential and audit log for one command run.
type session struct {
	cred  *keychain.AuditedCredential
	audit *audit.Logger
}

func (s *session) Close() error {
	return s.audit.Close()
}

func openSession(actor string, store keychain.Store) (*session, error) {
	home, err := rallyHome()
	if err != nil {
		return nil, err
	}

	auditLog, err := audit.NewLogger(filepath.Join(home, "audit.log"))
	if err != nil {
		return nil, err
	}
	meta, err := keychain.NewMetadataStore(filepath.Join(home, "key-metadata.json"))
	if err != nil {
		auditLog.Close()
		return nil, err
	}

	cred := keychain.NewAuditedCredential(keychain.NewCredential(store), auditLog, meta, actor)
	return &session{cred: cred, audit: auditLog}, nil
}
