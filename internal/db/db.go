// Package db locates and opens the workspace database. A workspace keeps
// escra.yml at its root and its state under .escra/escra.db.
package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	StateDir = ".escra"
	FileName = "escra.db"
)

const defaultBusyTimeout = 5 * time.Second

type Config struct {
	Workspace string
	// BusyTimeout bounds how long a writer waits for the lock held by
	// another process, such as a CLI command run next to escra serve.
	BusyTimeout time.Duration
}

func workspaceDir(workspace string) string {
	if workspace == "" {
		return "."
	}
	return workspace
}

// Path returns the database file of workspace.
func Path(workspace string) string {
	return filepath.Join(workspaceDir(workspace), StateDir, FileName)
}

// EnsureWorkspace creates the state directory and returns its path.
func EnsureWorkspace(workspace string) (string, error) {
	dir := filepath.Join(workspaceDir(workspace), StateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return dir, nil
}

// Open opens escra.db, creating the state directory first. Foreign keys are
// enforced so task and comment rows go away with their contract.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	timeout := cfg.BusyTimeout
	if timeout <= 0 {
		timeout = defaultBusyTimeout
	}
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", timeout.Milliseconds()))
	conn, err := sql.Open("sqlite", "file:"+Path(cfg.Workspace)+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", Path(cfg.Workspace), err)
	}
	return conn, nil
}
