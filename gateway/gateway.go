// Package gateway is the websocket front end of the room coordinator.
//
// Each connection gets a read loop that decodes JSON frames and hands them to
// the coordinator one at a time, and a write loop that drains a bounded send
// queue. The gateway implements room.Dispatcher: broadcast instructions are
// encoded once and queued on every connection the registry binds to the
// target room.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chaincraft/domain/registry"
	"chaincraft/domain/room"
	"chaincraft/domain/session"
	"chaincraft/metrics"
)

const tracerName = "chaincraft/gateway"

type Config struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	PingInterval    time.Duration
	SendBuffer      int
	MaxMessageBytes int64
	// AllowedOrigin is matched against the Origin header. "*" or empty allows any.
	AllowedOrigin string
}

func DefaultConfig() Config {
	return Config{
		ReadTimeout:     60 * time.Second,
		WriteTimeout:    10 * time.Second,
		PingInterval:    54 * time.Second,
		SendBuffer:      64,
		MaxMessageBytes: 64 << 10,
		AllowedOrigin:   "*",
	}
}

type Gateway struct {
	cfg      Config
	upgrader websocket.Upgrader
	rooms    room.Service
	registry *registry.Registry

	mu      sync.RWMutex
	clients map[string]*client

	logger  *slog.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer
	now     func() time.Time
}

type Option func(*Gateway)

func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(g *Gateway) { g.metrics = m }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(g *Gateway) { g.tracer = tp.Tracer(tracerName) }
}

func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

func New(rooms room.Service, reg *registry.Registry, cfg Config, opts ...Option) *Gateway {
	def := DefaultConfig()
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = def.MaxMessageBytes
	}

	g := &Gateway{
		cfg:      cfg,
		rooms:    rooms,
		registry: reg,
		clients:  make(map[string]*client),
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if g.cfg.AllowedOrigin == "" || g.cfg.AllowedOrigin == "*" {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || origin == g.cfg.AllowedOrigin
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	c := newClient(uuid.NewString(), conn, g)
	g.mu.Lock()
	g.clients[c.id] = c
	g.mu.Unlock()
	g.metrics.ConnectionOpened()
	g.logger.Debug("connection opened", "conn", c.id, "remote", r.RemoteAddr)

	go c.writeLoop()
	c.readLoop()
	g.disconnect(c)
}

func (g *Gateway) disconnect(c *client) {
	c.close()
	if _, err := g.rooms.Disconnect(context.Background(), c.id); err != nil && !errors.Is(err, room.ErrUnbound) {
		g.logger.Error("disconnect failed", "conn", c.id, "error", err)
	}

	g.mu.Lock()
	delete(g.clients, c.id)
	g.mu.Unlock()
	g.metrics.ConnectionClosed()
	g.logger.Debug("connection closed", "conn", c.id)
}

// Close closes every open connection. Their read loops turn the closes into leaves.
func (g *Gateway) Close() {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, c := range g.clients {
		c.close()
	}
}

func (g *Gateway) client(id string) *client {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.clients[id]
}

// Dispatch implements room.Dispatcher.
func (g *Gateway) Dispatch(b room.Broadcast) {
	frame, err := encodeFrame(b.Event, b.Payload)
	if err != nil {
		g.logger.Error("broadcast dropped", "event", b.Event, "room", b.RoomID, "error", err)
		return
	}

	var targets []string
	switch b.Scope {
	case room.ScopeConnection:
		targets = []string{b.ConnID}
	default:
		targets = g.registry.Connections(b.RoomID)
	}

	queued := 0
	for _, id := range targets {
		if c := g.client(id); c != nil && c.enqueue(frame) {
			queued++
		}
	}
	g.metrics.Outbound(b.Event, queued)
}

// handle processes one inbound frame. A panic is confined to this event.
func (g *Gateway) handle(c *client, msg []byte) {
	start := time.Now()
	name := "unknown"
	outcome := "ok"

	ctx, span := g.tracer.Start(context.Background(), "gateway.event",
		trace.WithAttributes(attribute.String("conn", c.id)))
	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			g.metrics.Panic()
			g.logger.Error("event handler panic", "conn", c.id, "event", name, "panic", r, "stack", string(debug.Stack()))
			span.SetStatus(codes.Error, fmt.Sprint(r))
			g.reply(c, "internal error")
		}
		g.metrics.Event(name, outcome, time.Since(start))
		span.End()
	}()

	f, err := decodeFrame(msg)
	if err == nil {
		name = canonical(f.Event)
		span.SetName("gateway." + name)
		span.SetAttributes(attribute.String("event", name))
		err = g.route(ctx, c, name, f)
	}
	outcome = g.report(c, name, err)
	if err != nil && outcome != "dropped" {
		span.SetStatus(codes.Error, err.Error())
	}
}

func (g *Gateway) route(ctx context.Context, c *client, name string, f Frame) error {
	switch name {
	case EventJoin:
		var d joinData
		if err := decodeData(f, &d); err != nil {
			return err
		}
		_, err := g.rooms.Join(ctx, c.id, d.room(), d.player())
		return err

	case EventLeave:
		var d leaveData
		if err := decodeData(f, &d); err != nil {
			return err
		}
		_, err := g.rooms.Leave(ctx, c.id, d.room())
		return err

	case EventAction:
		var d actionData
		if err := decodeData(f, &d); err != nil {
			return err
		}
		_, err := g.rooms.Act(ctx, c.id, d.room(), d.Action)
		return err

	case EventChat:
		var d chatData
		if err := decodeData(f, &d); err != nil {
			return err
		}
		return g.relayChat(c, d)

	case EventGameOver:
		var d gameOverData
		if err := decodeData(f, &d); err != nil {
			return err
		}
		_, err := g.rooms.GameOver(ctx, c.id, d.room(), d.Score)
		return err

	default:
		return &room.ValidationError{Field: "event", Reason: fmt.Sprintf("%q is not supported", f.Event)}
	}
}

// relayChat forwards a chat message to the sender's room. Nothing is stored.
func (g *Gateway) relayChat(c *client, d chatData) error {
	b, ok := g.registry.Lookup(c.id)
	if !ok || (d.room() != "" && d.room() != b.RoomID) {
		return room.ErrUnbound
	}
	if d.Message == "" {
		return &room.ValidationError{Field: "message", Reason: "is required"}
	}
	g.Dispatch(room.ChatBroadcast(b.RoomID, b.Player, d.Message, g.now().UnixMilli()))
	return nil
}

// report classifies err, replies to the origin where the client can act on
// it and returns the metrics outcome label.
func (g *Gateway) report(c *client, event string, err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, room.ErrUnbound):
		g.logger.Debug("event from unbound connection dropped", "conn", c.id, "event", event)
		return "dropped"
	case errors.Is(err, room.ErrValidation):
		g.reply(c, err.Error())
		return "invalid"
	case errors.Is(err, session.ErrRoomFull):
		g.reply(c, err.Error())
		return "room_full"
	default:
		g.logger.Error("event failed", "conn", c.id, "event", event, "error", err)
		g.reply(c, err.Error())
		return "error"
	}
}

func (g *Gateway) reply(c *client, message string) {
	g.Dispatch(room.ErrorReply(c.id, message))
}

var _ room.Dispatcher = (*Gateway)(nil)
