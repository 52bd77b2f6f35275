// Package core owns engine state and runs the per-request lifecycle.
package core

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/memback/memback/storage"
)

// Stage identifies a lifecycle hook stage.
type Stage string

const (
	BeforeSave   Stage = "beforeSave"
	BeforeDelete Stage = "beforeDelete"
)

// Hook runs before a save or delete is applied. A beforeSave hook may return
// a replacement document; returning nil keeps the original. Returning an
// error aborts the request and its message is surfaced unmodified.
type Hook func(ctx context.Context, doc map[string]any) (map[string]any, error)

// Store owns all engine state: collections, field masks and hook
// registrations. It assumes a single caller; requests must not be issued
// concurrently and Reset must be serialized against in-flight requests.
type Store struct {
	storage *storage.Memory
	masks   map[string]map[string]struct{}
	hooks   map[string]map[Stage]Hook
	now     func() time.Time
	newID   func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDFunc overrides the object id generator.
func WithIDFunc(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// Open returns a new engine instance with empty collections.
func Open(opts ...Option) *Store {
	s := &Store{
		storage: storage.NewMemory(),
		masks:   make(map[string]map[string]struct{}),
		hooks:   make(map[string]map[Stage]Hook),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reset clears every collection, field mask and hook registration.
func (s *Store) Reset() {
	s.storage.Reset()
	s.masks = make(map[string]map[string]struct{})
	s.hooks = make(map[string]map[Stage]Hook)
}

// RegisterHook installs the hook for the given class and stage, replacing
// any previous registration.
func (s *Store) RegisterHook(className string, stage Stage, hook Hook) {
	m, ok := s.hooks[className]
	if !ok {
		m = make(map[Stage]Hook)
		s.hooks[className] = m
	}
	m[stage] = hook
}

// runHook awaits the registered hook, if any, and returns the document the
// rest of the request must use.
func (s *Store) runHook(ctx context.Context, className string, stage Stage, doc map[string]any) (map[string]any, error) {
	hook, ok := s.hooks[className][stage]
	if !ok {
		return doc, nil
	}
	replaced, err := hook(ctx, doc)
	if err != nil {
		return nil, err
	}
	if replaced != nil {
		return replaced, nil
	}
	return doc, nil
}

// maskFields marks fields of a class as hidden from responses. The stored
// documents keep the fields; only the wire shape omits them.
func (s *Store) maskFields(className string, fields []string) {
	if len(fields) == 0 {
		return
	}
	m, ok := s.masks[className]
	if !ok {
		m = make(map[string]struct{})
		s.masks[className] = m
	}
	for _, f := range fields {
		m[f] = struct{}{}
	}
}
