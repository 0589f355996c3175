// Package registry tracks the panes that have asked for attention, most
// recent first, together with the pinned "active" pane shared by the web UI,
// push notifications and the inbound listener.
//
// Hooks run as separate processes, so every mutation is a
// load-modify-save cycle under both an in-process mutex and an advisory
// file lock. Reads go straight to the store, which only ever exposes fully
// committed writes.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/epinadev/claude-remote-ui/internal/model"
)

// DefaultRetention caps the instance history.
const DefaultRetention = 10

const lockRetryDelay = 50 * time.Millisecond

// Store is the durable backing for a Registry.
type Store interface {
	Load(ctx context.Context) (model.RegistryState, error)
	Save(ctx context.Context, st model.RegistryState) error
}

type Options struct {
	Retention int
	// LockPath enables the cross-process lock. Empty means in-process
	// serialisation only.
	LockPath string
	Logger   *slog.Logger
	Now      func() time.Time
}

type Registry struct {
	mu        sync.Mutex
	store     Store
	fileLock  *flock.Flock
	retention int
	logger    *slog.Logger
	now       func() time.Time
}

func New(store Store, opts Options) (*Registry, error) {
	r := &Registry{
		store:     store,
		retention: opts.Retention,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if r.retention <= 0 {
		r.retention = DefaultRetention
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	if opts.LockPath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.LockPath), 0o700); err != nil {
			return nil, fmt.Errorf("create lock dir: %w", err)
		}
		r.fileLock = flock.New(opts.LockPath)
	}
	return r, nil
}

// Verify loads the store once and reports corruption. Intended for process
// startup, where a damaged store is fatal.
func (r *Registry) Verify(ctx context.Context) error {
	if _, err := r.store.Load(ctx); err != nil {
		return fmt.Errorf("verify registry: %w", err)
	}
	return nil
}

// Snapshot returns the current state. A corrupt store reads as empty.
func (r *Registry) Snapshot(ctx context.Context) (model.RegistryState, error) {
	st, err := r.load(ctx)
	if err != nil {
		return model.RegistryState{}, err
	}
	return st, nil
}

// List returns the tracked instances, most recently active first.
func (r *Registry) List(ctx context.Context) ([]model.InstanceRecord, error) {
	st, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	return st.Instances, nil
}

// Active returns the pinned target, or nil when the caller should
// auto-discover.
func (r *Registry) Active(ctx context.Context) (*model.PaneTarget, error) {
	st, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	return st.Active, nil
}

// Lookup returns the record for paneID.
func (r *Registry) Lookup(ctx context.Context, paneID string) (model.InstanceRecord, bool, error) {
	st, err := r.load(ctx)
	if err != nil {
		return model.InstanceRecord{}, false, err
	}
	if i := st.Find(paneID); i >= 0 {
		return st.Instances[i], true, nil
	}
	return model.InstanceRecord{}, false, nil
}

// Touch records activity on target: an existing record moves to the front
// with refreshed metadata, a new one is inserted at the front. The history
// is then cut to the retention limit.
func (r *Registry) Touch(ctx context.Context, target model.PaneTarget) error {
	if err := model.ValidatePaneID(target.PaneID); err != nil {
		return err
	}
	return r.mutate(ctx, func(st *model.RegistryState) error {
		r.touch(st, target)
		return nil
	})
}

// SetActive pins paneID as the current target. Only tracked panes can be
// pinned.
func (r *Registry) SetActive(ctx context.Context, paneID string) (model.PaneTarget, error) {
	if err := model.ValidatePaneID(paneID); err != nil {
		return model.PaneTarget{}, err
	}
	var pinned model.PaneTarget
	err := r.mutate(ctx, func(st *model.RegistryState) error {
		i := st.Find(paneID)
		if i < 0 {
			return fmt.Errorf("%w: %s", model.ErrUnknownInstance, paneID)
		}
		pinned = st.Instances[i].PaneTarget
		st.Active = &pinned
		return nil
	})
	return pinned, err
}

// Activate touches target and pins it in one critical section. A firing
// hook always becomes the active target this way.
func (r *Registry) Activate(ctx context.Context, target model.PaneTarget) error {
	if err := model.ValidatePaneID(target.PaneID); err != nil {
		return err
	}
	return r.mutate(ctx, func(st *model.RegistryState) error {
		r.touch(st, target)
		active := target
		st.Active = &active
		return nil
	})
}

// Prune drops every record for which isAlive reports false and returns the
// removed targets. Liveness is evaluated before the lock is taken so slow
// probes never hold up other writers.
func (r *Registry) Prune(ctx context.Context, isAlive func(model.PaneTarget) bool) ([]model.PaneTarget, error) {
	st, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	dead := make(map[string]bool)
	for _, rec := range st.Instances {
		if !isAlive(rec.PaneTarget) {
			dead[rec.PaneID] = true
		}
	}
	if st.Active != nil && st.Find(st.Active.PaneID) < 0 && !isAlive(*st.Active) {
		dead[st.Active.PaneID] = true
	}
	if len(dead) == 0 {
		return nil, nil
	}

	var removed []model.PaneTarget
	err = r.mutate(ctx, func(st *model.RegistryState) error {
		kept := st.Instances[:0]
		for _, rec := range st.Instances {
			if dead[rec.PaneID] {
				removed = append(removed, rec.PaneTarget)
				continue
			}
			kept = append(kept, rec)
		}
		st.Instances = kept
		if st.Active != nil && dead[st.Active.PaneID] {
			st.Active = nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(removed) > 0 {
		r.logger.Info("pruned dead instances", "count", len(removed))
	}
	return removed, nil
}

func (r *Registry) touch(st *model.RegistryState, target model.PaneTarget) {
	rec := model.NewInstanceRecord(target, r.now())
	if i := st.Find(target.PaneID); i >= 0 {
		st.Instances = append(st.Instances[:i], st.Instances[i+1:]...)
	}
	st.Instances = append([]model.InstanceRecord{rec}, st.Instances...)
	if st.Active != nil && st.Active.PaneID == target.PaneID {
		active := target
		st.Active = &active
	}
	if len(st.Instances) > r.retention {
		for _, evicted := range st.Instances[r.retention:] {
			if st.Active != nil && st.Active.PaneID == evicted.PaneID {
				st.Active = nil
			}
		}
		st.Instances = st.Instances[:r.retention]
	}
}

// mutate runs fn on the freshly loaded state and saves the result while
// holding both locks. Nothing is written when fn fails.
func (r *Registry) mutate(ctx context.Context, fn func(st *model.RegistryState) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fileLock != nil {
		locked, err := r.fileLock.TryLockContext(ctx, lockRetryDelay)
		if err != nil {
			return fmt.Errorf("acquire registry lock: %w", err)
		}
		if !locked {
			return fmt.Errorf("acquire registry lock: %s is held", r.fileLock.Path())
		}
		defer func() { _ = r.fileLock.Unlock() }()
	}

	st, err := r.load(ctx)
	if err != nil {
		return err
	}
	if err := fn(&st); err != nil {
		return err
	}
	if err := r.store.Save(ctx, st); err != nil {
		return fmt.Errorf("save registry: %w", err)
	}
	return nil
}

// load reads the store, treating corruption as an empty registry. The next
// successful write replaces the damaged content.
func (r *Registry) load(ctx context.Context) (model.RegistryState, error) {
	st, err := r.store.Load(ctx)
	if errors.Is(err, model.ErrCorruptState) {
		r.logger.Warn("registry state unreadable, treating as empty", "err", err)
		return model.RegistryState{}, nil
	}
	if err != nil {
		return model.RegistryState{}, fmt.Errorf("load registry: %w", err)
	}
	return st, nil
}
