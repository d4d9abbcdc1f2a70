package session

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

var (
	ErrNotFound      = errors.New("session not found")
	ErrAlreadyExists = errors.New("session already exists")
	ErrRoomFull      = errors.New("room is full")
	ErrInvalid       = errors.New("invalid session")
)

// Store owns the table of game sessions.
// Every method is atomic with respect to a single session id; list methods
// return a consistent snapshot. Returned sessions are copies.
type Store interface {
	// Create adds a session with creator as its first member.
	// Returns ErrAlreadyExists if id is taken.
	Create(id, creator string, maxPlayers int, fields Fields) (Session, error)

	Get(id string) (Session, bool)

	// Update shallow-merges patch into the session.
	// Returns false if id is unknown.
	Update(id string, patch Patch) (Session, bool)

	// Delete removes the session. Returns false if id is unknown.
	Delete(id string) bool

	// AddMember appends player to the member list. Adding a present member
	// is a no-op; adding to a full session returns ErrRoomFull.
	AddMember(id, player string) (Session, error)

	// RemoveMember drops player from the member list. Absent players are a no-op.
	RemoveMember(id, player string) (Session, bool)

	ListActive() []Session
	ListByCreator(creator string) []Session
	List() []Session
}

// Option configures a MemoryStore or Leaderboard.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// MemoryStore implements Store in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string // creation order, for stable listings
	now      func() time.Time
}

func NewMemoryStore(opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{
		sessions: make(map[string]*Session),
		now:      o.now,
	}
}

func (m *MemoryStore) Create(id, creator string, maxPlayers int, fields Fields) (Session, error) {
	if id == "" {
		return Session{}, fmt.Errorf("%w: empty id", ErrInvalid)
	}
	if maxPlayers <= 0 {
		return Session{}, fmt.Errorf("%w: max players must be positive, got %d", ErrInvalid, maxPlayers)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; exists {
		return Session{}, fmt.Errorf("%w: %s", ErrAlreadyExists, id)
	}

	now := m.now()
	s := &Session{
		ID:           id,
		Name:         orDefault(fields.Name, DefaultName),
		Genre:        orDefault(fields.Genre, DefaultGenre),
		Description:  fields.Description,
		Creator:      creator,
		MaxPlayers:   maxPlayers,
		GameState:    CloneState(fields.GameState),
		Rules:        slices.Clone(fields.Rules),
		WinCondition: fields.WinCondition,
		Artifact:     fields.Artifact,
		History:      slices.Clone(fields.History),
		Active:       true,
		CreatedAt:    now,
		LastActivity: now,
	}
	if creator != "" {
		s.Members = []string{creator}
	} else {
		s.Members = []string{}
	}

	m.sessions[id] = s
	m.order = append(m.order, id)
	return s.clone(), nil
}

func (m *MemoryStore) Get(id string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	return s.clone(), true
}

func (m *MemoryStore) Update(id string, patch Patch) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	patch.apply(s)
	s.LastActivity = m.now()
	return s.clone(), true
}

func (m *MemoryStore) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	if i := slices.Index(m.order, id); i >= 0 {
		m.order = slices.Delete(m.order, i, i+1)
	}
	return true
}

func (m *MemoryStore) AddMember(id, player string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if s.HasMember(player) {
		return s.clone(), nil
	}
	if len(s.Members) >= s.MaxPlayers {
		return Session{}, fmt.Errorf("%w: %s has %d/%d players", ErrRoomFull, id, len(s.Members), s.MaxPlayers)
	}
	s.Members = append(s.Members, player)
	s.LastActivity = m.now()
	return s.clone(), nil
}

func (m *MemoryStore) RemoveMember(id, player string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	if i := slices.Index(s.Members, player); i >= 0 {
		s.Members = slices.Delete(s.Members, i, i+1)
		s.LastActivity = m.now()
	}
	return s.clone(), true
}

func (m *MemoryStore) ListActive() []Session {
	return m.filter(func(s *Session) bool { return s.Active })
}

func (m *MemoryStore) ListByCreator(creator string) []Session {
	return m.filter(func(s *Session) bool { return s.Creator == creator })
}

func (m *MemoryStore) List() []Session {
	return m.filter(func(*Session) bool { return true })
}

func (m *MemoryStore) filter(keep func(*Session) bool) []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Session, 0, len(m.order))
	for _, id := range m.order {
		s := m.sessions[id]
		if keep(s) {
			out = append(out, s.clone())
		}
	}
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
