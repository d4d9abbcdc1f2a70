package room

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chaincraft/domain/registry"
	"chaincraft/domain/session"
)

var ctx = context.Background()

type recorder struct {
	mu  sync.Mutex
	out []Broadcast
}

func (r *recorder) Dispatch(b Broadcast) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = append(r.out, b)
}

func (r *recorder) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.out))
	for _, b := range r.out {
		names = append(names, b.Event)
	}
	return names
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = nil
}

type fixture struct {
	store    *session.MemoryStore
	registry *registry.Registry
	rec      *recorder
	coord    *Coordinator
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		store:    session.NewMemoryStore(),
		registry: registry.New(),
		rec:      &recorder{},
	}
	f.coord = NewCoordinator(f.store, f.registry, cfg, WithDispatcher(f.rec))
	return f
}

func TestJoinCreatesRoomLazily(t *testing.T) {
	f := newFixture(t, Config{})

	bs, err := f.coord.Join(ctx, "c1", "g1", "alice")
	require.NoError(t, err)
	require.Len(t, bs, 2)

	s, ok := f.store.Get("g1")
	require.True(t, ok)
	assert.Equal(t, "alice", s.Creator)
	assert.Equal(t, DefaultMaxPlayers, s.MaxPlayers)
	assert.Equal(t, []string{"alice"}, s.Members)

	joined := bs[0]
	assert.Equal(t, EventPlayerJoined, joined.Event)
	assert.Equal(t, ScopeRoom, joined.Scope)
	assert.Equal(t, MembershipPayload{RoomID: "g1", Player: "alice", MemberCount: 1, Members: []string{"alice"}}, joined.Payload)

	snapshot := bs[1]
	assert.Equal(t, EventGameState, snapshot.Event)
	assert.Equal(t, ScopeConnection, snapshot.Scope)
	assert.Equal(t, "c1", snapshot.ConnID)
	state := snapshot.Payload.(GameStatePayload)
	assert.Equal(t, session.DefaultName, state.Name)
	assert.Equal(t, []string{"alice"}, state.Members)

	b, ok := f.registry.Lookup("c1")
	require.True(t, ok)
	assert.Equal(t, "g1", b.RoomID)

	assert.Equal(t, []string{EventPlayerJoined, EventGameState}, f.rec.events())
}

func TestJoinValidation(t *testing.T) {
	f := newFixture(t, Config{})

	_, err := f.coord.Join(ctx, "c1", "", "alice")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.coord.Join(ctx, "c1", "g1", "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "player", verr.Field)

	assert.Empty(t, f.rec.events())
	assert.Empty(t, f.store.List())
}

func TestJoinCapacity(t *testing.T) {
	f := newFixture(t, Config{DefaultMaxPlayers: 3})

	for i := 0; i < 3; i++ {
		_, err := f.coord.Join(ctx, fmt.Sprintf("c%d", i), "g1", fmt.Sprintf("p%d", i))
		require.NoError(t, err)
	}
	f.rec.reset()

	bs, err := f.coord.Join(ctx, "c3", "g1", "p3")
	assert.ErrorIs(t, err, session.ErrRoomFull)
	assert.Empty(t, bs)
	assert.Empty(t, f.rec.events(), "rejection is not broadcast")

	_, bound := f.registry.Lookup("c3")
	assert.False(t, bound)

	s, _ := f.store.Get("g1")
	assert.Len(t, s.Members, 3)
}

func TestJoinIsIdempotentForMembers(t *testing.T) {
	f := newFixture(t, Config{DefaultMaxPlayers: 2})

	_, err := f.coord.Join(ctx, "c1", "g1", "alice")
	require.NoError(t, err)
	_, err = f.coord.Join(ctx, "c2", "g1", "bob")
	require.NoError(t, err)

	bs, err := f.coord.Join(ctx, "c3", "g1", "alice")
	require.NoError(t, err, "existing member is admitted even when full")
	require.Len(t, bs, 2)
	assert.Equal(t, 2, bs[0].Payload.(MembershipPayload).MemberCount)

	s, _ := f.store.Get("g1")
	assert.Equal(t, []string{"alice", "bob"}, s.Members)
}

func TestJoinAnotherRoomLeavesThePrevious(t *testing.T) {
	f := newFixture(t, Config{})

	_, err := f.coord.Join(ctx, "c1", "g1", "alice")
	require.NoError(t, err)
	_, err = f.coord.Join(ctx, "c2", "g1", "bob")
	require.NoError(t, err)
	f.rec.reset()

	_, err = f.coord.Join(ctx, "c1", "g2", "alice")
	require.NoError(t, err)

	assert.Equal(t, []string{EventPlayerLeft, EventPlayerJoined, EventGameState}, f.rec.events())
	g1, _ := f.store.Get("g1")
	assert.Equal(t, []string{"bob"}, g1.Members)
	assert.Equal(t, []string{"c1"}, f.registry.Connections("g2"))
}

func TestJoinFullRoomKeepsPreviousBinding(t *testing.T) {
	f := newFixture(t, Config{DefaultMaxPlayers: 1})

	_, err := f.coord.Join(ctx, "c1", "r1", "A")
	require.NoError(t, err)
	_, err = f.coord.Join(ctx, "c2", "r2", "B")
	require.NoError(t, err)
	f.rec.reset()

	bs, err := f.coord.Join(ctx, "c1", "r2", "A")
	assert.ErrorIs(t, err, session.ErrRoomFull)
	assert.Empty(t, bs)
	assert.Empty(t, f.rec.events(), "r1 is not told A left")

	b, ok := f.registry.Lookup("c1")
	require.True(t, ok)
	assert.Equal(t, "r1", b.RoomID)

	r1, _ := f.store.Get("r1")
	assert.Equal(t, []string{"A"}, r1.Members)
	r2, _ := f.store.Get("r2")
	assert.Equal(t, []string{"B"}, r2.Members)
}

func TestJoinSameRoomUnderNewIdentityReusesSeat(t *testing.T) {
	f := newFixture(t, Config{DefaultMaxPlayers: 1})

	_, err := f.coord.Join(ctx, "c1", "r1", "A")
	require.NoError(t, err)
	f.rec.reset()

	_, err = f.coord.Join(ctx, "c1", "r1", "A2")
	require.NoError(t, err)
	assert.Equal(t, []string{EventPlayerLeft, EventPlayerJoined, EventGameState}, f.rec.events())

	r1, _ := f.store.Get("r1")
	assert.Equal(t, []string{"A2"}, r1.Members)
}

func TestConcurrentRoomSwapsDoNotDeadlock(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.coord.Join(ctx, "c1", "r1", "A")
	require.NoError(t, err)
	_, err = f.coord.Join(ctx, "c2", "r2", "B")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.coord.Join(ctx, "c1", []string{"r1", "r2"}[i%2], "A")
		}()
		go func() {
			defer wg.Done()
			_, _ = f.coord.Join(ctx, "c2", []string{"r2", "r1"}[i%2], "B")
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, f.registry.Len())
	r1, _ := f.store.Get("r1")
	r2, _ := f.store.Get("r2")
	assert.Len(t, append(r1.Members, r2.Members...), 2, "each player sits in exactly one room")
	for conn, player := range map[string]string{"c1": "A", "c2": "B"} {
		b, ok := f.registry.Lookup(conn)
		require.True(t, ok)
		g, _ := f.store.Get(b.RoomID)
		assert.True(t, g.HasMember(player), "%s is a member of its bound room", player)
	}
}

func TestLeave(t *testing.T) {
	f := newFixture(t, Config{})

	_, err := f.coord.Join(ctx, "c1", "g1", "alice")
	require.NoError(t, err)
	_, err = f.coord.Join(ctx, "c2", "g1", "bob")
	require.NoError(t, err)
	f.rec.reset()

	bs, err := f.coord.Leave(ctx, "c2", "g1")
	require.NoError(t, err)
	require.Len(t, bs, 1)
	assert.Equal(t, EventPlayerLeft, bs[0].Event)
	assert.Equal(t, MembershipPayload{RoomID: "g1", Player: "bob", MemberCount: 1, Members: []string{"alice"}}, bs[0].Payload)

	bs, err = f.coord.Leave(ctx, "c2", "g1")
	assert.ErrorIs(t, err, ErrUnbound)
	assert.Empty(t, bs)
	assert.Equal(t, []string{EventPlayerLeft}, f.rec.events(), "second leave broadcasts nothing")
}

func TestLeaveWrongRoomIsDropped(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.coord.Join(ctx, "c1", "g1", "alice")
	require.NoError(t, err)

	_, err = f.coord.Leave(ctx, "c1", "other")
	assert.ErrorIs(t, err, ErrUnbound)

	_, ok := f.registry.Lookup("c1")
	assert.True(t, ok)
}

func TestDisconnectMatchesLeave(t *testing.T) {
	run := func(leave func(c *Coordinator) ([]Broadcast, error)) []Broadcast {
		f := newFixture(t, Config{})
		_, err := f.coord.Join(ctx, "c1", "g1", "alice")
		require.NoError(t, err)
		_, err = f.coord.Join(ctx, "c2", "g1", "bob")
		require.NoError(t, err)

		bs, err := leave(f.coord)
		require.NoError(t, err)
		return bs
	}

	explicit := run(func(c *Coordinator) ([]Broadcast, error) { return c.Leave(ctx, "c1", "g1") })
	dropped := run(func(c *Coordinator) ([]Broadcast, error) { return c.Disconnect(ctx, "c1") })

	assert.Equal(t, explicit, dropped)
}

func TestDisconnectUnboundIsNoop(t *testing.T) {
	f := newFixture(t, Config{})

	bs, err := f.coord.Disconnect(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUnbound)
	assert.Empty(t, bs)
}

func TestActUpdatesStateAndBroadcasts(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	f := newFixture(t, Config{})
	f.coord.now = func() time.Time { return now }

	_, err := f.coord.Join(ctx, "c1", "g1", "A")
	require.NoError(t, err)
	f.rec.reset()

	env := ActionEnvelope{Type: TagUpdateScore, Payload: map[string]any{"score": 500}}
	bs, err := f.coord.Act(ctx, "c1", "g1", env)
	require.NoError(t, err)
	require.Len(t, bs, 1)

	p := bs[0].Payload.(ActionPayload)
	assert.Equal(t, EventActionBroadcast, bs[0].Event)
	assert.Equal(t, "A", p.Player)
	assert.Equal(t, env, p.Action)
	assert.Equal(t, now.UnixMilli(), p.Timestamp)
	assert.Equal(t, map[string]any{"A": 500}, p.NewState["scores"])

	s, _ := f.store.Get("g1")
	assert.Equal(t, p.NewState, s.GameState)
}

func TestActFromUnboundConnectionIsDropped(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.coord.Join(ctx, "c1", "g1", "A")
	require.NoError(t, err)
	f.rec.reset()

	_, err = f.coord.Act(ctx, "stranger", "g1", ActionEnvelope{Type: TagMove})
	assert.ErrorIs(t, err, ErrUnbound)

	_, err = f.coord.Act(ctx, "c1", "g2", ActionEnvelope{Type: TagMove})
	assert.ErrorIs(t, err, ErrUnbound)

	assert.Empty(t, f.rec.events())
}

func TestActRejectsMissingType(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.coord.Join(ctx, "c1", "g1", "A")
	require.NoError(t, err)

	_, err = f.coord.Act(ctx, "c1", "", ActionEnvelope{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestConcurrentActionsDoNotLoseUpdates(t *testing.T) {
	f := newFixture(t, Config{DefaultMaxPlayers: 64})

	const players = 50
	for i := 0; i < players; i++ {
		_, err := f.coord.Join(ctx, fmt.Sprintf("c%d", i), "g1", fmt.Sprintf("p%d", i))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < players; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.coord.Act(ctx, fmt.Sprintf("c%d", i), "g1", ActionEnvelope{
				Type:    TagUpdateScore,
				Payload: map[string]any{"score": i},
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	s, _ := f.store.Get("g1")
	scores := s.GameState["scores"].(map[string]any)
	require.Len(t, scores, players)
	for i := 0; i < players; i++ {
		assert.Equal(t, i, scores[fmt.Sprintf("p%d", i)])
	}
}

func TestBroadcastsForARoomAreDeliveredInStateOrder(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.coord.Join(ctx, "c1", "g1", "A")
	require.NoError(t, err)
	f.rec.reset()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.coord.Act(ctx, "c1", "g1", ActionEnvelope{Type: TagMove, Payload: map[string]any{}})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	f.rec.mu.Lock()
	defer f.rec.mu.Unlock()
	require.Len(t, f.rec.out, 20)
	for i, b := range f.rec.out {
		moves := b.Payload.(ActionPayload).NewState["moves"].([]any)
		assert.Len(t, moves, i+1, "dispatch %d carries state version %d", i, i+1)
	}
}

func TestGameOver(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.coord.Join(ctx, "c1", "g1", "A")
	require.NoError(t, err)
	before, _ := f.store.Get("g1")

	bs, err := f.coord.GameOver(ctx, "c1", "g1", 1200)
	require.NoError(t, err)
	require.Len(t, bs, 1)
	p := bs[0].Payload.(FinishedPayload)
	assert.Equal(t, "A", p.Player)
	assert.Equal(t, 1200, p.Score)

	after, _ := f.store.Get("g1")
	assert.Equal(t, before.GameState, after.GameState)

	_, err = f.coord.GameOver(ctx, "c1", "g1", nil)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.coord.GameOver(ctx, "nobody", "g1", 5)
	assert.ErrorIs(t, err, ErrUnbound)
}

func TestJoinCapacityInvariantUnderConcurrency(t *testing.T) {
	f := newFixture(t, Config{DefaultMaxPlayers: 4})
	_, err := f.store.Create("g1", "host", 4, session.Fields{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = f.coord.Join(ctx, fmt.Sprintf("c%d", i), "g1", fmt.Sprintf("p%d", i))
		}(i)
	}
	wg.Wait()

	s, _ := f.store.Get("g1")
	assert.Len(t, s.Members, 4)
	assert.Equal(t, 3, f.registry.Count("g1"))
}
