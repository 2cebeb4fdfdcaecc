// Package server initializes and runs the sync server: database setup,
// HTTP routing, and graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mberzins/envault/internal/logging"
	"github.com/mberzins/envault/internal/server/config"
	"github.com/mberzins/envault/internal/server/httpapi"
	"github.com/mberzins/envault/internal/server/services"
	"github.com/mberzins/envault/internal/server/store"
)

// shutdownTimeout bounds how long in-flight requests may run after a stop
// signal.
const shutdownTimeout = 10 * time.Second

// App bundles everything the running server needs.
type App struct {
	cfg *config.Config
	log logging.Logger
	db  *sql.DB
	srv *http.Server
}

// NewApp connects to the database, migrates it, and wires the services and
// routes.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logging.NewJSONLogger(os.Stdout)

	db, err := store.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	userService := services.NewUserService(db, cfg, log)
	vaultService := services.NewVaultService(db, log)
	handler := httpapi.NewHandler(userService, vaultService, cfg, log)

	return &App{
		cfg: cfg,
		log: log,
		db:  db,
		srv: &http.Server{Addr: cfg.Addr, Handler: handler.Routes()},
	}, nil
}

// Run serves until the context is cancelled or a stop signal arrives, then
// shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(sigs)

	errCh := make(chan error, 1)
	go func() {
		a.log.Info(ctx, "server listening", "addr", a.cfg.Addr)
		if err := a.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.db.Close()
		return err
	case <-sigs:
	case <-ctx.Done():
	}

	a.log.Info(ctx, "shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	err := a.srv.Shutdown(shutdownCtx)
	a.db.Close()
	return err
}
