package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/beacon-site/apiserver/config"
	"github.com/beacon-site/apiserver/internal/auth"
	"github.com/beacon-site/apiserver/internal/db"
	"github.com/beacon-site/apiserver/internal/handlers"
	"github.com/beacon-site/apiserver/internal/notify"
	"github.com/beacon-site/apiserver/internal/services"
	"github.com/beacon-site/apiserver/internal/storage"
	"github.com/beacon-site/apiserver/internal/store"
	"github.com/beacon-site/apiserver/internal/upstream"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	bus        *notify.Bus
}

// New constructs a Server. Every shared component (DB pool, token
// verifier with its key-set cache, upstream client, storage, bus) is
// built once here and injected; request handling holds no global state.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	accountRepo := store.NewAccountRepository(dbConn)
	sessionRepo := store.NewSessionRepository(dbConn)
	verificationRepo := store.NewVerificationTokenRepository(dbConn)

	verifier, err := newVerifier(ctx, cfg.Auth)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	avatars, err := newAvatars(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	bus, err := newBus(ctx, cfg.Notify)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	hasher := auth.NewHasher(cfg.Auth.BcryptCost)
	userService := services.NewUserService(userRepo, accountRepo, avatars)

	var publisher services.VerificationPublisher
	if bus != nil {
		publisher = bus
	}
	authService := services.NewAuthService(
		userRepo, sessionRepo, verificationRepo, hasher, publisher, cfg.Auth.SessionTTL,
	)

	upstreamClient := upstream.NewClient(cfg.Upstream)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
		handlers.WithIdentity(verifier, authService),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authService, userService)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, userService)
	})
	router.Route("/dashboard", func(r chi.Router) {
		handlers.DashboardRouter(r, upstreamClient)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		bus:        bus,
	}, nil
}

// newVerifier selects the external token verifier: JWKS when an endpoint
// is configured, shared-secret HS256 for local development otherwise.
func newVerifier(ctx context.Context, cfg config.AuthConfig) (auth.TokenVerifier, error) {
	if cfg.JWKSURL != "" {
		if cfg.Issuer == "" || cfg.Audience == "" {
			return nil, errors.New("AUTH_ISSUER and AUTH_AUDIENCE are required with AUTH_JWKS_URL")
		}
		return auth.NewJWKSVerifier(ctx, cfg.JWKSURL, cfg.Issuer, cfg.Audience), nil
	}
	if cfg.HS256Secret != "" {
		return auth.NewHS256Verifier(cfg.HS256Secret, cfg.Issuer, cfg.Audience), nil
	}
	return nil, errors.New("either AUTH_JWKS_URL or AUTH_HS256_SECRET is required")
}

func newAvatars(ctx context.Context, cfg config.StorageConfig) (*storage.Avatars, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "minio":
		backend, err := storage.NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, err
		}
		avatars := storage.NewAvatars(backend)
		if err := avatars.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return avatars, nil
	case "gcs":
		backend, err := storage.NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		avatars := storage.NewAvatars(backend)
		if err := avatars.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return avatars, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func newBus(ctx context.Context, cfg config.NotifyConfig) (*notify.Bus, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "rabbitmq":
		backend, err := notify.NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return notify.New(backend), nil
	case "pubsub":
		backend, err := notify.NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, err
		}
		return notify.New(backend), nil
	default:
		return nil, fmt.Errorf("unknown notify backend %q", cfg.Backend)
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.bus != nil {
		_ = s.bus.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}
