package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/connect"
	"connectrpc.com/validate"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/protobuf/types/known/structpb"

	"chaincraft/config"
	"chaincraft/design"
	"chaincraft/domain/registry"
	"chaincraft/domain/room"
	"chaincraft/domain/session"
	"chaincraft/gateway"
	"chaincraft/ledger"
	"chaincraft/metrics"
	"chaincraft/utils"
)

type Server struct {
	Store       session.Store
	Leaderboard *session.Leaderboard
	Rooms       *room.Coordinator
	Gateway     *gateway.Gateway
	Generator   design.Generator
	Minter      ledger.Minter

	cfg      config.Config
	logger   *slog.Logger
	gatherer prometheus.Gatherer
	now      func() time.Time

	mintMu  sync.Mutex
	minting map[string]struct{}
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func WithGenerator(g design.Generator) Option {
	return func(s *Server) { s.Generator = g }
}

func WithMinter(m ledger.Minter) Option {
	return func(s *Server) { s.Minter = m }
}

// New wires the store, registry, coordinator and gateway for cfg.
func New(cfg config.Config, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  slog.Default(),
		now:     time.Now,
		minting: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.gatherer = reg
	m := metrics.New(reg)

	if s.Generator == nil {
		s.Generator = design.NewOpenAIClient(design.OpenAIConfig{
			APIKey:  cfg.Generator.APIKey,
			Model:   cfg.Generator.Model,
			BaseURL: cfg.Generator.BaseURL,
		})
	}
	if s.Minter == nil {
		s.Minter = ledger.New(ledger.Config{
			RPCURL:     cfg.Ledger.RPCURL,
			PrivateKey: cfg.Ledger.PrivateKey,
		}, s.logger)
	}

	s.Store = session.NewMemoryStore()
	s.Leaderboard = session.NewLeaderboard(cfg.LeaderboardCapacity)
	bindings := registry.New()
	s.Rooms = room.NewCoordinator(s.Store, bindings, room.Config{
		DefaultMaxPlayers: cfg.DefaultMaxPlayers,
		Retention:         cfg.Retention,
	}, room.WithLogger(s.logger), room.WithMetrics(m))
	s.Gateway = gateway.New(s.Rooms, bindings, cfg.Gateway(),
		gateway.WithLogger(s.logger), gateway.WithMetrics(m))
	s.Rooms.SetDispatcher(s.Gateway)
	return s
}

// Handler builds the HTTP surface: websocket gateway, connect RPC services,
// metrics and health.
func (s *Server) Handler() (http.Handler, error) {
	validateInterceptor, err := validate.NewInterceptor()
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)

	r.Get("/api/health", s.health)
	r.Handle("/ws", s.Gateway)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	for _, p := range s.procedures() {
		r.Handle(p.path, connect.NewUnaryHandler[structpb.Struct, structpb.Struct](p.path, p.fn,
			connect.WithInterceptors(validateInterceptor)))
	}
	return utils.WithCORS(r, s.cfg.AllowedOrigin), nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

// Run serves until ctx is cancelled, then drains HTTP requests and closes
// every websocket connection.
func (s *Server) Run(ctx context.Context) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.Rooms.RunRetention(ctx)

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("server listening",
		"addr", s.cfg.Addr,
		"retention", s.cfg.Retention.Policy,
	)

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Gateway.Close()
	return srv.Shutdown(shutdownCtx)
}
