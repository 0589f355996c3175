package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/epinadev/claude-remote-ui/internal/model"
)

// Store persists the instance registry in SQLite. Hook processes and the
// server open the same file; WAL plus busy_timeout lets them share it.
type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, classifyErr("ping sqlite", err)
	}
	if err := os.Chmod(path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = db.Close()
		return nil, fmt.Errorf("chmod db path: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenMigrated opens path and brings its schema up to date.
func OpenMigrated(ctx context.Context, path string) (*Store, error) {
	s, err := Open(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := ApplyMigrations(ctx, s.db); err != nil {
		_ = s.Close()
		return nil, classifyErr("migrate", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// LoadRegistry reads the ordered instance list and the active pointer.
// Rows that cannot be decoded yield model.ErrCorruptState.
func (s *Store) LoadRegistry(ctx context.Context) (model.RegistryState, error) {
	var st model.RegistryState
	rows, err := s.db.QueryContext(ctx, `
SELECT pane_id, session_name, window_name, display_name, last_active
FROM instances
ORDER BY position ASC
`)
	if err != nil {
		return st, classifyErr("query instances", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			rec        model.InstanceRecord
			lastActive string
		)
		if err := rows.Scan(&rec.PaneID, &rec.SessionName, &rec.WindowName, &rec.DisplayName, &lastActive); err != nil {
			return st, classifyErr("scan instance", err)
		}
		at, err := parseTS(lastActive)
		if err != nil {
			return st, fmt.Errorf("%w: instance %s last_active %q", model.ErrCorruptState, rec.PaneID, lastActive)
		}
		rec.LastActive = at
		st.Instances = append(st.Instances, rec)
	}
	if err := rows.Err(); err != nil {
		return st, classifyErr("iterate instances", err)
	}

	var active model.PaneTarget
	err = s.db.QueryRowContext(ctx, `SELECT pane_id, session_name, window_name FROM active_target WHERE id = 1`).
		Scan(&active.PaneID, &active.SessionName, &active.WindowName)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return st, classifyErr("query active target", err)
	default:
		st.Active = &active
	}
	return st, nil
}

// SaveRegistry replaces the stored registry with st in one transaction so
// readers never observe a partially written list.
func (s *Store) SaveRegistry(ctx context.Context, st model.RegistryState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classifyErr("begin registry tx", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM instances`); err != nil {
		return classifyErr("clear instances", err)
	}
	for i, rec := range st.Instances {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO instances(pane_id, session_name, window_name, display_name, last_active, position)
VALUES (?, ?, ?, ?, ?, ?)
`, rec.PaneID, rec.SessionName, rec.WindowName, rec.DisplayName, ts(rec.LastActive), i); err != nil {
			return classifyErr("insert instance", err)
		}
	}

	if st.Active == nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM active_target`); err != nil {
			return classifyErr("clear active target", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO active_target(id, pane_id, session_name, window_name, updated_at)
VALUES (1, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	pane_id=excluded.pane_id,
	session_name=excluded.session_name,
	window_name=excluded.window_name,
	updated_at=excluded.updated_at
`, st.Active.PaneID, st.Active.SessionName, st.Active.WindowName, ts(time.Now())); err != nil {
			return classifyErr("upsert active target", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return classifyErr("commit registry tx", err)
	}
	return nil
}

// classifyErr marks damaged database files as model.ErrCorruptState so the
// registry can tell them apart from transient I/O failures.
func classifyErr(op string, err error) error {
	msg := err.Error()
	if containsAny(msg, "file is not a database", "database disk image is malformed", "no such table") {
		return fmt.Errorf("%s: %w: %v", op, model.ErrCorruptState, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
