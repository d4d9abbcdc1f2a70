package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chaincraft/domain/registry"
	"chaincraft/domain/session"
	"chaincraft/metrics"
)

const (
	DefaultMaxPlayers = 8
	tracerName        = "chaincraft/room"
)

// Service is the room protocol engine. Every method resolves the acting
// player through the connection registry, mutates the session store inside
// the room's critical section and dispatches the resulting broadcasts before
// releasing it. The returned broadcasts are the ones already dispatched.
type Service interface {
	Join(ctx context.Context, connID, roomID, player string) ([]Broadcast, error)
	Leave(ctx context.Context, connID, roomID string) ([]Broadcast, error)
	Disconnect(ctx context.Context, connID string) ([]Broadcast, error)
	Act(ctx context.Context, connID, roomID string, action ActionEnvelope) ([]Broadcast, error)
	GameOver(ctx context.Context, connID, roomID string, score any) ([]Broadcast, error)
}

// Config tunes the coordinator.
type Config struct {
	// DefaultMaxPlayers is the capacity of rooms created lazily on join.
	DefaultMaxPlayers int
	Retention         Retention
	// LockStripes is the number of per-room mutexes.
	LockStripes int
}

type Coordinator struct {
	store    session.Store
	registry *registry.Registry
	out      Dispatcher
	locks    *roomLocks
	cfg      Config
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Collector
	tracer   trace.Tracer
}

type Option func(*Coordinator)

func WithDispatcher(d Dispatcher) Option {
	return func(c *Coordinator) { c.out = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Coordinator) { c.tracer = tp.Tracer(tracerName) }
}

func NewCoordinator(store session.Store, reg *registry.Registry, cfg Config, opts ...Option) *Coordinator {
	if cfg.DefaultMaxPlayers <= 0 {
		cfg.DefaultMaxPlayers = DefaultMaxPlayers
	}
	c := &Coordinator{
		store:    store,
		registry: reg,
		locks:    newRoomLocks(cfg.LockStripes),
		cfg:      cfg,
		now:      time.Now,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetDispatcher installs the broadcast sink. It must be called before the
// coordinator handles any event.
func (c *Coordinator) SetDispatcher(d Dispatcher) {
	c.out = d
}

func (c *Coordinator) emit(bs ...Broadcast) []Broadcast {
	if c.out != nil {
		for _, b := range bs {
			c.out.Dispatch(b)
		}
	}
	return bs
}

// Join admits player to roomID on behalf of connID.
// A room that does not exist yet is created with player as its creator.
// A connection already bound elsewhere is moved: both rooms are locked, the
// capacity of roomID is checked first, and only an admitted join leaves the
// previous room. A rejected join changes nothing.
func (c *Coordinator) Join(ctx context.Context, connID, roomID, player string) (bs []Broadcast, err error) {
	if roomID == "" {
		return nil, required("roomId")
	}
	if player == "" {
		return nil, required("player")
	}
	_, span := c.startSpan(ctx, "room.join", connID, roomID)
	defer func() { endSpan(span, err) }()

	for {
		prev, rebinding := c.registry.Lookup(connID)
		moving := rebinding && (prev.RoomID != roomID || prev.Player != player)
		rooms := []string{roomID}
		if moving {
			rooms = append(rooms, prev.RoomID)
		}

		unlock := c.locks.lockAll(rooms...)
		if cur, ok := c.registry.Lookup(connID); ok != rebinding || cur != prev {
			// rebound while waiting for the locks
			unlock()
			continue
		}
		bs, err = c.joinLocked(connID, roomID, player, prev, moving)
		unlock()
		return bs, err
	}
}

// joinLocked runs with the locks of roomID and, when moving, prev.RoomID held.
func (c *Coordinator) joinLocked(connID, roomID, player string, prev registry.Binding, moving bool) (bs []Broadcast, err error) {
	s, ok := c.store.Get(roomID)
	if !ok {
		s, err = c.store.Create(roomID, player, c.cfg.DefaultMaxPlayers, session.Fields{})
		switch {
		case err == nil:
			c.metrics.RoomCreated()
			c.logger.Info("room created on join", "room", roomID, "creator", player)
		case errors.Is(err, session.ErrAlreadyExists):
			// created concurrently by the design flow
			if s, ok = c.store.Get(roomID); !ok {
				return nil, fmt.Errorf("room %s: %w", roomID, session.ErrNotFound)
			}
		default:
			return nil, err
		}
	}

	if !s.HasMember(player) {
		occupied := len(s.Members)
		if moving && prev.RoomID == roomID && s.HasMember(prev.Player) {
			occupied--
		}
		if occupied >= s.MaxPlayers {
			return nil, c.rejectFull(roomID, player, fmt.Errorf("%w: %s has %d/%d players",
				session.ErrRoomFull, roomID, len(s.Members), s.MaxPlayers))
		}
	}

	if moving {
		bs = c.leaveLocked(connID, prev)
	}
	s, err = c.store.AddMember(roomID, player)
	if err != nil {
		if errors.Is(err, session.ErrRoomFull) {
			return bs, c.rejectFull(roomID, player, err)
		}
		return bs, err
	}
	c.registry.Bind(connID, player, roomID)

	c.logger.Info("player joined", "room", roomID, "player", player, "members", len(s.Members))
	return append(bs, c.emit(
		membership(EventPlayerJoined, s, player),
		toConn(connID, roomID, EventGameState, GameStatePayload{
			RoomID:  roomID,
			State:   s.GameState,
			Members: s.Members,
			Name:    s.Name,
		}),
	)...), nil
}

func (c *Coordinator) rejectFull(roomID, player string, err error) error {
	c.metrics.RoomFull()
	c.logger.Info("join rejected", "room", roomID, "player", player, "error", err)
	return err
}

// Leave removes the player bound to connID from its room. roomID may be
// empty; otherwise it must match the binding.
func (c *Coordinator) Leave(ctx context.Context, connID, roomID string) (bs []Broadcast, err error) {
	b, err := c.resolve(connID, roomID)
	if err != nil {
		return nil, err
	}
	_, span := c.startSpan(ctx, "room.leave", connID, b.RoomID)
	defer func() { endSpan(span, err) }()

	unlock := c.locks.lock(b.RoomID)
	defer unlock()

	if cur, ok := c.registry.Lookup(connID); !ok || cur != b {
		return nil, ErrUnbound
	}
	return c.leaveLocked(connID, b), nil
}

// leaveLocked unbinds connID and removes its player from b.RoomID.
// The caller holds the lock of b.RoomID.
func (c *Coordinator) leaveLocked(connID string, b registry.Binding) []Broadcast {
	c.registry.Unbind(connID)
	s, ok := c.store.RemoveMember(b.RoomID, b.Player)
	if !ok {
		return nil
	}
	c.logger.Info("player left", "room", b.RoomID, "player", b.Player, "members", len(s.Members))
	return c.emit(membership(EventPlayerLeft, s, b.Player))
}

// Disconnect is a leave whose room comes from the registry.
func (c *Coordinator) Disconnect(ctx context.Context, connID string) ([]Broadcast, error) {
	return c.Leave(ctx, connID, "")
}

// Act applies an action to the room's game state and broadcasts the result.
func (c *Coordinator) Act(ctx context.Context, connID, roomID string, env ActionEnvelope) (bs []Broadcast, err error) {
	b, err := c.resolve(connID, roomID)
	if err != nil {
		return nil, err
	}
	_, span := c.startSpan(ctx, "room.act", connID, b.RoomID)
	defer func() { endSpan(span, err) }()

	action, err := env.Parse()
	if err != nil {
		return nil, err
	}

	unlock := c.locks.lock(b.RoomID)
	defer unlock()

	s, ok := c.store.Get(b.RoomID)
	if !ok {
		return nil, nil
	}
	now := c.now()
	next := Reduce(s.GameState, action, b.Player, now)
	if _, ok := c.store.Update(b.RoomID, session.Patch{GameState: next}); !ok {
		return nil, nil
	}

	c.logger.Debug("action applied", "room", b.RoomID, "player", b.Player, "type", action.Tag())
	return c.emit(toRoom(b.RoomID, EventActionBroadcast, ActionPayload{
		RoomID:    b.RoomID,
		Player:    b.Player,
		Action:    env,
		NewState:  next,
		Timestamp: now.UnixMilli(),
	})), nil
}

// GameOver announces a finished player. Neither the game state nor the
// leaderboard is touched.
func (c *Coordinator) GameOver(ctx context.Context, connID, roomID string, score any) (bs []Broadcast, err error) {
	b, err := c.resolve(connID, roomID)
	if err != nil {
		return nil, err
	}
	_, span := c.startSpan(ctx, "room.game_over", connID, b.RoomID)
	defer func() { endSpan(span, err) }()

	if score == nil {
		return nil, required("score")
	}

	unlock := c.locks.lock(b.RoomID)
	defer unlock()

	c.logger.Info("player finished", "room", b.RoomID, "player", b.Player, "score", score)
	return c.emit(toRoom(b.RoomID, EventPlayerFinished, FinishedPayload{
		RoomID:    b.RoomID,
		Player:    b.Player,
		Score:     score,
		Timestamp: c.now().UnixMilli(),
	})), nil
}

func (c *Coordinator) startSpan(ctx context.Context, name, connID, roomID string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("conn", connID),
		attribute.String("room", roomID),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// resolve returns the binding of connID when it addresses roomID.
// An empty roomID matches any binding.
func (c *Coordinator) resolve(connID, roomID string) (registry.Binding, error) {
	b, ok := c.registry.Lookup(connID)
	if !ok || (roomID != "" && roomID != b.RoomID) {
		return registry.Binding{}, ErrUnbound
	}
	return b, nil
}

var _ Service = (*Coordinator)(nil)
