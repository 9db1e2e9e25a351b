package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/meishi/backend/internal/auth"
	"github.com/meishi/backend/internal/config"
	"github.com/meishi/backend/internal/db"
	"github.com/meishi/backend/internal/exchange"
	"github.com/meishi/backend/internal/friends"
	"github.com/meishi/backend/internal/handlers"
	"github.com/meishi/backend/internal/middleware"
	"github.com/meishi/backend/internal/profiles"
	"github.com/meishi/backend/internal/qrtoken"
	"github.com/meishi/backend/internal/repositories"
	"github.com/meishi/backend/internal/storage"
)

// memoryIconBaseURL prefixes icon URLs when no public base URL is configured
// for the in-memory store.
const memoryIconBaseURL = "memory://icons"

// stores is the persistence adapter selected by config.Store. It is built
// once per process and handed to every service.
type stores struct {
	profiles repositories.ProfileRepository
	tokens   repositories.TokenRepository
	health   func(ctx context.Context) error
	close    func()
}

func openStores(ctx context.Context, cfg config.Config) (stores, error) {
	if cfg.Store == config.StoreMemory {
		return memoryStores(), nil
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return stores{}, err
	}
	return stores{
		profiles: repositories.NewPostgresProfileRepository(pool),
		tokens:   repositories.NewPostgresTokenRepository(pool),
		health:   pool.Ping,
		close:    pool.Close,
	}, nil
}

func memoryStores() stores {
	mem := repositories.NewMemoryStore()
	return stores{
		profiles: mem.Profiles(),
		tokens:   mem.Tokens(),
		close:    func() {},
	}
}

func openIconStorage(ctx context.Context, cfg config.Config) (profiles.IconStorage, error) {
	if cfg.Store == config.StoreMemory {
		base := cfg.ObjectStore.PublicBaseURL
		if base == "" {
			base = memoryIconBaseURL
		}
		return storage.NewMemoryStorage(base), nil
	}

	s3, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
	if err != nil {
		return nil, err
	}
	return s3, nil
}

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(cfg config.Config, st stores, icons profiles.IconStorage) handlers.Dependencies {
	authn := auth.NewAuthenticator(st.profiles)
	tokens := qrtoken.NewManager(authn, st.tokens,
		qrtoken.WithTTL(cfg.Exchange.TokenTTL),
		qrtoken.WithLength(cfg.Exchange.TokenLength),
		qrtoken.WithMaxAttempts(cfg.Exchange.MaxAttempts),
	)

	return handlers.Dependencies{
		Profiles:     profiles.NewService(authn, st.profiles, icons, cfg.Icon.Size),
		Tokens:       tokens,
		Exchange:     exchange.NewEngine(authn, st.profiles, st.tokens, tokens.TTL()),
		Friends:      friends.NewService(authn, st.profiles),
		RateLimiter:  middleware.NewRateLimiterFromConfig(cfg.RateLimit),
		HealthCheck:  st.health,
		MaxIconBytes: cfg.Icon.MaxBytes,
	}
}

func newHandler(deps handlers.Dependencies, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, deps)
	return middleware.RequestLogger(logger)(mux)
}
