// Package policyfile loads the compliance policy from YAML and hot-reloads
// it when the file changes.
package policyfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/lotline-backend/internal/domain/compliance"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

const DefaultDebounce = 250 * time.Millisecond

// Parse decodes, normalizes and validates a policy document. Unknown keys
// are rejected so typos do not silently fall back to defaults.
func Parse(data []byte) (compliance.Policy, error) {
	var p compliance.Policy
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return compliance.Policy{}, fmt.Errorf("decode policy: %w", err)
	}
	p = p.Normalize()
	if err := p.Validate(); err != nil {
		return compliance.Policy{}, fmt.Errorf("invalid policy: %w", err)
	}
	return p, nil
}

func Load(path string) (compliance.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return compliance.Policy{}, fmt.Errorf("read policy %s: %w", path, err)
	}
	return Parse(data)
}

// Store is a compliance.Source backed by a file. Readers get the last
// snapshot that parsed and validated.
type Store struct {
	path     string
	log      *logger.Logger
	debounce time.Duration

	cur atomic.Pointer[compliance.Policy]

	mu       sync.Mutex
	onChange []func(compliance.Policy)
}

// New loads path once. An empty path yields a store pinned to the defaults.
func New(log *logger.Logger, path string) (*Store, error) {
	s := &Store{path: path, log: log.With("component", "PolicyFile"), debounce: DefaultDebounce}
	if path == "" {
		p := compliance.DefaultPolicy()
		s.cur.Store(&p)
		return s, nil
	}
	p, err := Load(path)
	if err != nil {
		return nil, err
	}
	s.cur.Store(&p)
	s.log.Info("Compliance policy loaded", "path", path, "site_code", p.SiteCode)
	return s, nil
}

func (s *Store) Current() compliance.Policy {
	return *s.cur.Load()
}

func (s *Store) Path() string { return s.path }

// OnChange registers fn to run after every successful reload.
func (s *Store) OnChange(fn func(compliance.Policy)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// Reload re-reads the file. On error the previous snapshot stays active.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	p, err := Load(s.path)
	if err != nil {
		s.log.Warn("Compliance policy reload rejected; keeping previous", "path", s.path, "error", err)
		return err
	}
	s.cur.Store(&p)
	s.log.Info("Compliance policy reloaded", "path", s.path, "site_code", p.SiteCode)

	s.mu.Lock()
	fns := append(([]func(compliance.Policy))(nil), s.onChange...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(p)
	}
	return nil
}

// Watch reloads on writes to the policy file until ctx is done. The parent
// directory is watched so editors that replace the file are seen.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("policy watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch policy dir %s: %w", dir, err)
	}
	target := filepath.Clean(s.path)

	go func() {
		defer w.Close()
		var timer *time.Timer
		fire := make(chan struct{}, 1)
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(s.debounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			case <-fire:
				_ = s.Reload()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Warn("Policy watcher error", "error", err)
			}
		}
	}()
	s.log.Debug("Watching compliance policy", "path", s.path)
	return nil
}
