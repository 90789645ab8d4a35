package lifecycle

import (
	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/data"
	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/data/datatest"
)

// memStore adds caller-oriented helpers to the shared in-memory store.
type memStore struct {
	*datatest.MemStore
}

func newMemStore() *memStore {
	return &memStore{MemStore: datatest.New()}
}

func (m *memStore) addUser(role data.Role) Caller {
	u := m.AddUser(role)
	return Caller{ID: u.ID, Role: u.Role}
}

func (m *memStore) points(id string) int { return m.Points(id) }

func (m *memStore) status(id string) data.Status { return m.Status(id) }
