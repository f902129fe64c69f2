package storage

import (
	"context"
	"sort"
	"sync"

	"petshop/core"
)

// MemoryStore keeps pet documents in a map. It follows the same ID and revision rules as the
// CouchDB backend and is used for tests and local development.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]core.Pet
	closed bool
}

// NewMemoryStore creates an empty in-memory pet store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]core.Pet)}
}

func (m *MemoryStore) Create(_ context.Context, pet *core.Pet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrDatabaseClosed
	}

	id := pet.ID
	if id == "" {
		id = newDocumentID()
	} else if _, exists := m.docs[id]; exists {
		return ErrConflict
	}

	pet.ID = id
	pet.Rev = nextRevision("")
	m.docs[id] = *pet
	return nil
}

func (m *MemoryStore) Update(_ context.Context, pet *core.Pet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrDatabaseClosed
	}

	current, exists := m.docs[pet.ID]
	switch {
	case exists && current.Rev != pet.Rev:
		return ErrConflict
	case !exists && pet.Rev != "":
		return ErrConflict
	}

	pet.Rev = nextRevision(current.Rev)
	m.docs[pet.ID] = *pet
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id, rev string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrDatabaseClosed
	}

	current, exists := m.docs[id]
	if !exists {
		return ErrPetNotFound
	}
	if current.Rev != rev {
		return ErrConflict
	}
	delete(m.docs, id)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*core.Pet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrDatabaseClosed
	}

	pet, exists := m.docs[id]
	if !exists {
		return nil, ErrPetNotFound
	}
	return &pet, nil
}

func (m *MemoryStore) All(_ context.Context) ([]core.Pet, error) {
	return m.filter(nil)
}

func (m *MemoryStore) FindBy(_ context.Context, selector Selector) ([]core.Pet, error) {
	return m.filter(selector)
}

// filter returns matching pets ordered by ID, like CouchDB's _all_docs.
func (m *MemoryStore) filter(selector Selector) ([]core.Pet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrDatabaseClosed
	}

	pets := make([]core.Pet, 0, len(m.docs))
	for _, pet := range m.docs {
		if selector == nil || selector.Matches(&pet) {
			pets = append(pets, pet)
		}
	}
	sort.Slice(pets, func(i, j int) bool { return pets[i].ID < pets[j].ID })
	return pets, nil
}

func (m *MemoryStore) RemoveAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrDatabaseClosed
	}
	m.docs = make(map[string]core.Pet)
	return nil
}

func (m *MemoryStore) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrDatabaseClosed
	}
	return nil
}

func (m *MemoryStore) Close(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
