// SPDX-License-Identifier: MIT

// Package registry holds the live streaming sessions of this process.
//
// Entries are immutable snapshots published through a concurrent map. Writers
// clone, mutate the clone, and compare-and-swap it in; a lost race retries
// against the fresh value. Readers never see a half-applied update.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/model"
)

// ErrExists is returned by Put when the id is already registered.
var ErrExists = errors.New("session already registered")

// Registry is safe for concurrent use.
type Registry struct {
	m   sync.Map // id -> *model.StreamSession (never mutated once stored)
	now func() time.Time
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{now: time.Now}
}

// WithClock overrides the time source used by Acquire and Touch.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// Put registers a new session.
func (r *Registry) Put(s *model.StreamSession) error {
	if _, loaded := r.m.LoadOrStore(s.ID, s.Clone()); loaded {
		return fmt.Errorf("%w: %s", ErrExists, s.ID)
	}
	return nil
}

// Get returns a copy of the session.
func (r *Registry) Get(id string) (*model.StreamSession, bool) {
	v, ok := r.m.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*model.StreamSession).Clone(), true
}

// Update applies fn to a copy of the session and publishes the result. fn may
// run more than once under contention and must not have side effects beyond
// the session it is given. An error from fn aborts the update.
func (r *Registry) Update(id string, fn func(s *model.StreamSession) error) (*model.StreamSession, error) {
	for {
		v, ok := r.m.Load(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", model.ErrSessionNotFound, id)
		}
		cur := v.(*model.StreamSession)
		next := cur.Clone()
		if err := fn(next); err != nil {
			return nil, err
		}
		if r.m.CompareAndSwap(id, cur, next) {
			return next.Clone(), nil
		}
	}
}

// Delete removes the session and returns its last state.
func (r *Registry) Delete(id string) (*model.StreamSession, bool) {
	v, ok := r.m.LoadAndDelete(id)
	if !ok {
		return nil, false
	}
	return v.(*model.StreamSession), true
}

// Snapshot returns copies of all sessions ordered by creation time.
func (r *Registry) Snapshot() []*model.StreamSession {
	var out []*model.StreamSession
	r.m.Range(func(_, v any) bool {
		out = append(out, v.(*model.StreamSession).Clone())
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	n := 0
	r.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Touch refreshes the last-accessed time.
func (r *Registry) Touch(id string) (*model.StreamSession, error) {
	now := r.now()
	return r.Update(id, func(s *model.StreamSession) error {
		s.LastAccessed = now
		return nil
	})
}

// Acquire marks a request in flight against the session and refreshes its
// last-accessed time.
func (r *Registry) Acquire(id string) error {
	now := r.now()
	_, err := r.Update(id, func(s *model.StreamSession) error {
		s.InFlight++
		s.LastAccessed = now
		return nil
	})
	return err
}

// Release ends an in-flight request. Releasing a vanished session is a no-op.
func (r *Registry) Release(id string) {
	now := r.now()
	_, _ = r.Update(id, func(s *model.StreamSession) error {
		if s.InFlight > 0 {
			s.InFlight--
		}
		s.LastAccessed = now
		return nil
	})
}
