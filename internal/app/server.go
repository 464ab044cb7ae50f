package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/lensfeed/lensfeed/internal/api"
	"github.com/lensfeed/lensfeed/internal/config"
	"github.com/lensfeed/lensfeed/internal/feed"
	"github.com/lensfeed/lensfeed/internal/store"
)

// Server owns every long-lived resource: the DB pool, the live-session
// registry and the HTTP listener. There is no package-level state; teardown
// closes all of it in order.
type Server struct {
	httpServer *http.Server
	registry   *feed.Registry
	db         *sql.DB
	log        *zap.Logger
}

func NewServer(cfg *config.Config, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.L()
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := os.MkdirAll(cfg.Photos.Dir, 0o755); err != nil {
		db.Close()
		return nil, fmt.Errorf("create photo dir: %w", err)
	}

	registry := feed.NewRegistry()
	bus := feed.NewBus(registry, log.Named("feed"))
	handlers := api.NewHandlers(store.New(db), registry, bus, cfg, log.Named("api"))

	return &Server{
		httpServer: &http.Server{
			Addr:    cfg.Addr(),
			Handler: handlers.Routes(),
		},
		registry: registry,
		db:       db,
		log:      log,
	}, nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(store.MigrationsFS())
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Run serves HTTP until SIGINT/SIGTERM, then shuts down: stop accepting,
// close every live session, close the DB.
func (s *Server) Run() error {
	go func() {
		s.log.Info("listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	s.log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.httpServer.Shutdown(ctx)

	s.registry.CloseAll()
	if cerr := s.db.Close(); err == nil {
		err = cerr
	}
	return err
}
