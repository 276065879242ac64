package api

import (
	"log"
	"strings"

	"cvrpsim/internal/auth"
	"cvrpsim/internal/config"
	"cvrpsim/internal/runs"
	"cvrpsim/internal/store"
	"cvrpsim/internal/webhooks"
)

type Server struct {
	Store  store.Store
	Runs   *runs.Manager
	Auth   *auth.Verifier
	Broker EventBroker
	Config config.Config
}

// NewServer creates a Server. If no database URL is configured, uses the in-memory store.
func NewServer(cfg config.Config) (*Server, error) {
	var s store.Store
	if strings.TrimSpace(cfg.Server.DatabaseURL) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.Server.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := sp.MigrateDir("db/migrations"); err != nil {
			log.Printf("migrations: %v", err)
		}
		s = sp
	}
	// Broker selection
	var broker EventBroker = NewBroker()
	if cfg.Server.RedisURL != "" {
		if rb, err := NewRedisBroker(cfg.Server.RedisURL); err == nil {
			broker = rb
		} else {
			log.Printf("redis broker unavailable, using in-memory: %v", err)
		}
	}
	verifier := auth.NewVerifier(cfg.Server.AuthMode, cfg.Server.AuthHMACSecret)
	verifier.JWKSURL = cfg.Server.AuthJWKSURL
	return &Server{
		Store:  s,
		Runs:   runs.NewManager(s, broker, cfg.Solvers, cfg.Server.SnapshotRPS),
		Auth:   verifier,
		Broker: broker,
		Config: cfg,
	}, nil
}

// NewWebhookWorker creates a background worker for completion webhooks.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.Config.Server.WebhookMaxAttempts)
}
