package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rollcall/apiserver/config"
	"github.com/rollcall/apiserver/internal/auth"
	"github.com/rollcall/apiserver/internal/db"
	"github.com/rollcall/apiserver/internal/handlers"
	"github.com/rollcall/apiserver/internal/logging"
	"github.com/rollcall/apiserver/internal/mq"
	"github.com/rollcall/apiserver/internal/notify"
	"github.com/rollcall/apiserver/internal/services"
	"github.com/rollcall/apiserver/internal/storage"
	"github.com/rollcall/apiserver/internal/store"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	queue      *mq.MQ
	services   *Services
	log        logging.Logger
}

// Services holds the wired application services. It is built by
// NewServices and shared by the HTTP server and the CLI commands.
type Services struct {
	Users        *services.UserService
	Auth         *services.AuthService
	Registration *services.RegistrationService
	Files        *services.FileService

	// Notices drains verification notices inside this process. Set only
	// for the memory queue, which no other process can read.
	Notices *notify.Consumer
}

// NewServices wires stores and services around an open database.
// queue and objects may be nil.
func NewServices(cfg config.Config, dbConn *sql.DB, queue *mq.MQ, objects *storage.Storage, log logging.Logger) (*Services, error) {
	hasher, err := auth.NewPasswordHasher(cfg.Auth.BcryptCost)
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:        []byte(cfg.Auth.JWTSecret),
		SigningMethod: cfg.Auth.SigningMethod,
		TTL:           cfg.Auth.TokenTTL,
		Issuer:        cfg.Auth.Issuer,
	})
	if err != nil {
		return nil, err
	}

	verification, err := auth.NewVerificationTokens(cfg.Auth.VerificationKey())
	if err != nil {
		return nil, err
	}

	var notifier services.Notifier
	if queue != nil {
		notifier = notify.NewPublisher(queue, cfg.MQ.VerificationChannel, cfg.Auth.VerificationBaseURL)
	} else {
		notifier = notify.NewLogNotifier(log, cfg.Auth.VerificationBaseURL)
	}

	var notices *notify.Consumer
	if queue != nil && cfg.MQ.Backend == "memory" {
		notices = notify.NewConsumer(queue, cfg.MQ.VerificationChannel, notify.NewLogSender(log), log)
	}

	userRepo := store.NewUserRepository(dbConn)

	return &Services{
		Users: services.NewUserService(userRepo, hasher),
		Auth:  services.NewAuthService(userRepo, hasher, tokens, log),
		Registration: services.NewRegistrationService(userRepo, hasher, verification, notifier, services.RegistrationConfig{
			VerificationTTL: cfg.Auth.VerificationTTL,
		}, log),
		Files:   services.NewFileService(objects),
		Notices: notices,
	}, nil
}

// RunBackground starts the in-process workers in svcs. They stop when ctx
// is done.
func (svcs *Services) RunBackground(ctx context.Context, log logging.Logger) {
	if svcs.Notices == nil {
		return
	}
	go func() {
		if err := svcs.Notices.Run(ctx); err != nil && !errors.Is(err, mq.ErrClosed) {
			log.Error(ctx, "verification notice consumer stopped", "error", err)
		}
	}()
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config, log logging.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	queue, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	svcs, err := NewServices(cfg, dbConn, queue, objects, log)
	if err != nil {
		_ = dbConn.Close()
		if queue != nil {
			_ = queue.Close()
		}
		return nil, err
	}

	router := NewRouter(svcs, log)

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

	log.Info(ctx, "server configured",
		"port", port,
		"storage", cfg.Storage.Backend,
		"mq", cfg.MQ.Backend,
		"signing_method", cfg.Auth.SigningMethod,
	)

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		queue:      queue,
		services:   svcs,
		log:        log,
	}, nil
}

// NewRouter builds the HTTP routes for svcs.
func NewRouter(svcs *Services, log logging.Logger) *chi.Mux {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, svcs.Auth, svcs.Registration, log)
	})
	router.Route("/files", func(r chi.Router) {
		handlers.FileRouter(r, svcs.Files, svcs.Auth, log)
	})
	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.services.RunBackground(ctx, s.log)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info(ctx, "listening", "addr", s.httpServer.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.closeResources()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.httpServer.Shutdown(ctx)
	s.closeResources()
	return err
}

func (s *Server) closeResources() {
	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
