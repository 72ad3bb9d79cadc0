package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Registry maps absolute project paths to open Engines. It is created and
// owned by the caller; there is no package-level instance.
type Registry struct {
	mu       sync.Mutex
	engines  map[string]*Engine
	group    singleflight.Group
	defaults Options
}

// NewRegistry returns an empty registry. defaults supplies every Options
// field except ProjectDir for engines it opens.
func NewRegistry(defaults Options) *Registry {
	return &Registry{engines: make(map[string]*Engine), defaults: defaults}
}

// Get returns the Engine for projectDir, opening it on first use.
// Concurrent first calls for the same project share one open.
func (r *Registry) Get(ctx context.Context, projectDir string) (*Engine, error) {
	key, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project dir: %w", err)
	}

	r.mu.Lock()
	if e, ok := r.engines[key]; ok {
		r.mu.Unlock()
		return e, nil
	}
	r.mu.Unlock()

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		r.mu.Lock()
		if e, ok := r.engines[key]; ok {
			r.mu.Unlock()
			return e, nil
		}
		r.mu.Unlock()

		opts := r.defaults
		opts.ProjectDir = key
		e, err := Open(ctx, opts)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.engines[key] = e
		r.mu.Unlock()
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Engine), nil
}

// Len returns the number of open engines.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.engines)
}

// Close closes and forgets the engine for projectDir, if any.
func (r *Registry) Close(projectDir string) error {
	key, err := filepath.Abs(projectDir)
	if err != nil {
		return fmt.Errorf("failed to resolve project dir: %w", err)
	}
	r.mu.Lock()
	e, ok := r.engines[key]
	delete(r.engines, key)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return e.Close()
}

// CloseAll closes every engine and empties the registry.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	engines := r.engines
	r.engines = make(map[string]*Engine)
	r.mu.Unlock()

	var errs []error
	for _, e := range engines {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
