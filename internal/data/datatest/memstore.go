// Package datatest provides an in-memory implementation of the data stores
// for tests. It mirrors the conditional-write semantics of the Mongo stores.
package datatest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/data"
	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/normalize"
)

// MemStore implements the users, pickups, messages and completion stores.
type MemStore struct {
	mu       sync.Mutex
	seq      int
	clock    time.Time
	users    map[string]*data.User
	pickups  map[string]*data.Pickup
	order    []string
	messages []*data.ChatMessage

	failAward error
}

// New returns an empty store whose clock advances one second per write.
func New() *MemStore {
	return &MemStore{
		clock:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		users:   map[string]*data.User{},
		pickups: map[string]*data.Pickup{},
	}
}

func (m *MemStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *MemStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

// AddUser stores an active user with the given role and returns it.
func (m *MemStore) AddUser(role data.Role) *data.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID(string(role))
	u := &data.User{ID: id, Email: id + "@example.com", Name: id, Role: role, Password: "hash", IsActive: true, CreatedAt: m.tick()}
	m.users[id] = u
	c := *u
	return &c
}

// Points returns a user's eco points.
func (m *MemStore) Points(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id].EcoPoints
}

// Status returns a pickup's stored status.
func (m *MemStore) Status(id string) data.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pickups[id].Status
}

// FailAward makes CompletePickup fail with err without applying anything.
// A nil err restores normal behaviour.
func (m *MemStore) FailAward(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAward = err
}

func copyPickup(p *data.Pickup) *data.Pickup {
	c := *p
	if p.Rating != nil {
		r := *p.Rating
		c.Rating = &r
	}
	return &c
}

func (m *MemStore) CreateUser(_ context.Context, u *data.User) (*data.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.Email = normalize.Email(u.Email)
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return nil, data.ErrUserExists
		}
	}
	u.ID = m.nextID(string(u.Role))
	u.IsActive = true
	u.CreatedAt = m.tick()
	c := *u
	m.users[u.ID] = &c
	return u, nil
}

func (m *MemStore) GetUserByEmail(_ context.Context, email string) (*data.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = normalize.Email(email)
	for _, u := range m.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, data.ErrUserNotFound
}

func (m *MemStore) GetUserByID(_ context.Context, id string) (*data.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, data.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (m *MemStore) ListUsers(_ context.Context) ([]*data.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*data.User, 0, len(m.users))
	for _, u := range m.users {
		c := *u
		c.Password = ""
		out = append(out, &c)
	}
	return out, nil
}

func (m *MemStore) SetActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return data.ErrUserNotFound
	}
	u.IsActive = active
	return nil
}

func (m *MemStore) CountByRole(_ context.Context, role data.Role) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, u := range m.users {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

func (m *MemStore) InsertPickup(_ context.Context, p *data.Pickup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.nextID("pickup")
	if p.Status == "" {
		p.Status = data.StatusPending
	}
	p.CreatedAt = m.tick()
	p.UpdatedAt = p.CreatedAt
	m.pickups[p.ID] = copyPickup(p)
	m.order = append(m.order, p.ID)
	return nil
}

func (m *MemStore) GetPickup(_ context.Context, id string) (*data.Pickup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pickups[id]
	if !ok {
		return nil, data.ErrPickupNotFound
	}
	return copyPickup(p), nil
}

// FindPickups returns matches newest first.
func (m *MemStore) FindPickups(_ context.Context, f data.PickupFilter) ([]*data.Pickup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*data.Pickup
	for i := len(m.order) - 1; i >= 0; i-- {
		p := m.pickups[m.order[i]]
		if f.Matches(p) {
			out = append(out, copyPickup(p))
		}
	}
	return out, nil
}

func (m *MemStore) CountPickups(_ context.Context, f data.PickupFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, p := range m.pickups {
		if f.Matches(p) {
			n++
		}
	}
	return n, nil
}

func (m *MemStore) TransitionStatus(_ context.Context, id string, from, to data.Status, collectorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pickups[id]
	if !ok || p.Status != from {
		return data.ErrStatusConflict
	}
	p.Status = to
	if collectorID != "" {
		p.CollectorID = collectorID
	}
	p.UpdatedAt = m.tick()
	return nil
}

func (m *MemStore) SetRating(_ context.Context, id, userID string, rating int, feedback string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pickups[id]
	if !ok || p.UserID != userID || p.Status != data.StatusCollected || p.Rating != nil {
		return data.ErrStatusConflict
	}
	p.Rating = &rating
	p.Feedback = feedback
	p.UpdatedAt = m.tick()
	return nil
}

func (m *MemStore) CollectorRatings(_ context.Context, collectorID string) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []int
	for _, p := range m.pickups {
		if p.CollectorID == collectorID && p.Rating != nil {
			out = append(out, *p.Rating)
		}
	}
	return out, nil
}

func (m *MemStore) SaveMessage(_ context.Context, msg *data.ChatMessage) (*data.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ID = m.nextID("msg")
	msg.Timestamp = m.tick()
	c := *msg
	m.messages = append(m.messages, &c)
	return msg, nil
}

// ListMessages returns the pickup's messages in insertion order.
func (m *MemStore) ListMessages(_ context.Context, pickupID string) ([]*data.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*data.ChatMessage{}
	for _, msg := range m.messages {
		if msg.PickupID == pickupID {
			c := *msg
			out = append(out, &c)
		}
	}
	return out, nil
}

// CompletePickup applies both writes under one lock, like a transaction.
func (m *MemStore) CompletePickup(_ context.Context, p *data.Pickup, from data.Status, points int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAward != nil {
		return m.failAward
	}
	stored, ok := m.pickups[p.ID]
	if !ok || stored.Status != from {
		return data.ErrStatusConflict
	}
	owner, ok := m.users[stored.UserID]
	if !ok {
		return data.ErrUserNotFound
	}
	stored.Status = data.StatusCollected
	stored.UpdatedAt = m.tick()
	owner.EcoPoints += points
	return nil
}

// Ping always succeeds.
func (m *MemStore) Ping(context.Context) error { return nil }
