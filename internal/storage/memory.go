// Package storage contains the in-memory note store used for development and
// tests. It honours the same contract as the Postgres repository.
package storage

import (
	"context"
	"sync"

	"github.com/dharsanguruparan/NoteDrop/internal/model"
)

// MemoryStore keeps notes in insertion order behind an RWMutex.
type MemoryStore struct {
	mu    sync.RWMutex
	notes map[string]*model.Note
	order []string
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		notes: make(map[string]*model.Note),
	}
}

// Create inserts a copy of note.
func (m *MemoryStore) Create(_ context.Context, note *model.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := note.Clone()
	if c.LikedBy == nil {
		c.LikedBy = []string{}
	}
	if _, exists := m.notes[c.ID]; !exists {
		m.order = append(m.order, c.ID)
	}
	m.notes[c.ID] = c
	return nil
}

// List returns copies of all notes in reverse insertion order.
func (m *MemoryStore) List(_ context.Context) ([]*model.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Note, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		out = append(out, m.notes[m.order[i]].Clone())
	}
	return out, nil
}

// Get returns a copy of the note.
func (m *MemoryStore) Get(_ context.Context, id string) (*model.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.notes[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return n.Clone(), nil
}

// ToggleLike flips email's like under the write lock.
func (m *MemoryStore) ToggleLike(_ context.Context, id, email string) (*model.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	n.ToggleLike(email)
	return n.Clone(), nil
}

// DeleteOwned removes the note if ownerEmail owns it.
func (m *MemoryStore) DeleteOwned(_ context.Context, id, ownerEmail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[id]
	if !ok || n.UploadedByEmail != ownerEmail {
		return model.ErrNotFound
	}
	delete(m.notes, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// StorageKeys returns the blob keys referenced by stored notes.
func (m *MemoryStore) StorageKeys(_ context.Context) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make(map[string]struct{}, len(m.notes))
	for _, n := range m.notes {
		keys[n.StorageKey] = struct{}{}
	}
	return keys, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error {
	return nil
}
