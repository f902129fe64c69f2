package storage

import (
	"context"
	"sync"

	"petshop/core"
)

// MockPetStore implements PetStore for testing. Each call goes to the matching func field when
// set and to an in-memory store otherwise, so tests only override the calls they care about.
type MockPetStore struct {
	*MemoryStore

	CreateFunc    func(ctx context.Context, pet *core.Pet) error
	UpdateFunc    func(ctx context.Context, pet *core.Pet) error
	DeleteFunc    func(ctx context.Context, id, rev string) error
	GetFunc       func(ctx context.Context, id string) (*core.Pet, error)
	AllFunc       func(ctx context.Context) ([]core.Pet, error)
	FindByFunc    func(ctx context.Context, selector Selector) ([]core.Pet, error)
	RemoveAllFunc func(ctx context.Context) error
	PingFunc      func(ctx context.Context) error

	mu    sync.Mutex
	calls map[string]int
}

func NewMockPetStore() *MockPetStore {
	return &MockPetStore{MemoryStore: NewMemoryStore(), calls: make(map[string]int)}
}

func (m *MockPetStore) record(op string) {
	m.mu.Lock()
	m.calls[op]++
	m.mu.Unlock()
}

// Calls returns how many times op was invoked
func (m *MockPetStore) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *MockPetStore) Create(ctx context.Context, pet *core.Pet) error {
	m.record("create")
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, pet)
	}
	return m.MemoryStore.Create(ctx, pet)
}

func (m *MockPetStore) Update(ctx context.Context, pet *core.Pet) error {
	m.record("update")
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, pet)
	}
	return m.MemoryStore.Update(ctx, pet)
}

func (m *MockPetStore) Delete(ctx context.Context, id, rev string) error {
	m.record("delete")
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id, rev)
	}
	return m.MemoryStore.Delete(ctx, id, rev)
}

func (m *MockPetStore) Get(ctx context.Context, id string) (*core.Pet, error) {
	m.record("get")
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return m.MemoryStore.Get(ctx, id)
}

func (m *MockPetStore) All(ctx context.Context) ([]core.Pet, error) {
	m.record("all")
	if m.AllFunc != nil {
		return m.AllFunc(ctx)
	}
	return m.MemoryStore.All(ctx)
}

func (m *MockPetStore) FindBy(ctx context.Context, selector Selector) ([]core.Pet, error) {
	m.record("find")
	if m.FindByFunc != nil {
		return m.FindByFunc(ctx, selector)
	}
	return m.MemoryStore.FindBy(ctx, selector)
}

func (m *MockPetStore) RemoveAll(ctx context.Context) error {
	m.record("remove_all")
	if m.RemoveAllFunc != nil {
		return m.RemoveAllFunc(ctx)
	}
	return m.MemoryStore.RemoveAll(ctx)
}

func (m *MockPetStore) Ping(ctx context.Context) error {
	m.record("ping")
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return m.MemoryStore.Ping(ctx)
}
