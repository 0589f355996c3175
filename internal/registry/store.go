package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/epinadev/claude-remote-ui/internal/db"
	"github.com/epinadev/claude-remote-ui/internal/model"
)

// SQLiteStore adapts db.Store to the registry.
type SQLiteStore struct {
	db *db.Store
}

func NewSQLiteStore(s *db.Store) *SQLiteStore {
	return &SQLiteStore{db: s}
}

func (s *SQLiteStore) Load(ctx context.Context) (model.RegistryState, error) {
	return s.db.LoadRegistry(ctx)
}

func (s *SQLiteStore) Save(ctx context.Context, st model.RegistryState) error {
	return s.db.SaveRegistry(ctx, st)
}

// FileStore keeps the registry in one JSON document, replaced by
// write-temp-then-rename so a reader sees either the old or the new file.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

type fileRecord struct {
	Pane        string `json:"pane"`
	Session     string `json:"session"`
	Window      string `json:"window"`
	DisplayName string `json:"display_name"`
	LastActive  string `json:"last_active"`
}

type fileTarget struct {
	Pane    string `json:"pane"`
	Session string `json:"session"`
	Window  string `json:"window"`
}

type fileDocument struct {
	Instances []fileRecord `json:"instances"`
	Active    *fileTarget  `json:"active,omitempty"`
}

func (s *FileStore) Load(_ context.Context) (model.RegistryState, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return model.RegistryState{}, nil
	}
	if err != nil {
		return model.RegistryState{}, fmt.Errorf("read registry file: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return model.RegistryState{}, nil
	}

	var doc fileDocument
	if data[0] == '[' {
		// Bare list written by earlier releases, without an active pointer.
		err = json.Unmarshal(data, &doc.Instances)
	} else {
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return model.RegistryState{}, fmt.Errorf("%w: %s: %v", model.ErrCorruptState, s.path, err)
	}

	st := model.RegistryState{Instances: make([]model.InstanceRecord, 0, len(doc.Instances))}
	for _, rec := range doc.Instances {
		if rec.Pane == "" || st.Find(rec.Pane) >= 0 {
			return model.RegistryState{}, fmt.Errorf("%w: %s: empty or duplicate pane %q", model.ErrCorruptState, s.path, rec.Pane)
		}
		at, err := parseLastActive(rec.LastActive)
		if err != nil {
			return model.RegistryState{}, fmt.Errorf("%w: %s: pane %s: %v", model.ErrCorruptState, s.path, rec.Pane, err)
		}
		target := model.PaneTarget{PaneID: rec.Pane, SessionName: rec.Session, WindowName: rec.Window}
		st.Instances = append(st.Instances, model.InstanceRecord{
			PaneTarget:  target,
			LastActive:  at,
			DisplayName: target.DisplayName(),
		})
	}
	if doc.Active != nil && doc.Active.Pane != "" {
		st.Active = &model.PaneTarget{PaneID: doc.Active.Pane, SessionName: doc.Active.Session, WindowName: doc.Active.Window}
	}
	return st, nil
}

func (s *FileStore) Save(_ context.Context, st model.RegistryState) error {
	doc := fileDocument{Instances: make([]fileRecord, 0, len(st.Instances))}
	for _, rec := range st.Instances {
		doc.Instances = append(doc.Instances, fileRecord{
			Pane:        rec.PaneID,
			Session:     rec.SessionName,
			Window:      rec.WindowName,
			DisplayName: rec.DisplayName,
			LastActive:  rec.LastActive.UTC().Format(time.RFC3339Nano),
		})
	}
	if st.Active != nil {
		doc.Active = &fileTarget{Pane: st.Active.PaneID, Session: st.Active.SessionName, Window: st.Active.WindowName}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp registry file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp registry file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp registry file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp registry file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace registry file: %w", err)
	}
	return nil
}

// parseLastActive accepts RFC 3339 and the zone-less ISO form of earlier
// releases, which recorded local time.
func parseLastActive(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", v, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid last_active %q", v)
	}
	return t.UTC(), nil
}
