// Package api exposes the daemon's HTTP control surface.
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"wallet-notifier/internal/domain"
	"wallet-notifier/internal/errtrack"
	"wallet-notifier/internal/observability"
	"wallet-notifier/internal/pipeline"
	"wallet-notifier/internal/storage"
	"wallet-notifier/internal/worker"
)

// requestTimeout bounds store and worker calls of one request.
const requestTimeout = 5 * time.Second

// Notifier is the part of the pipeline driven over HTTP.
type Notifier interface {
	Track(account domain.Account) error
	Untrack(accountID string) error
	Status() []pipeline.AccountStatus
	Activity(accountID string) ([]domain.Effect, error)
}

// Worker is the control surface of the background worker.
type Worker interface {
	AccountData(ctx context.Context, network domain.Network, accountID string) (*domain.AccountData, error)
	Status(ctx context.Context) (*worker.Status, error)
	Pause()
	Resume()
}

// Deps are the collaborators of Server. Trades, Cursors and Errors are
// optional.
type Deps struct {
	Notifier Notifier
	Worker   Worker
	Accounts storage.AccountStore
	Trades   storage.TradeStore
	Cursors  storage.CursorStore
	Errors   *errtrack.Tracker
	Logger   *log.Logger
	Clock    func() time.Time
}

// Server serves the control API.
type Server struct {
	deps   Deps
	engine *gin.Engine
	logger *log.Logger
	clock  func() time.Time
}

// New creates a Server and registers its routes.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[api] ", log.LstdFlags)
	}
	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{deps: deps, engine: r, logger: logger, clock: clock}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(observability.Handler()))
	r.GET("/status", s.handleStatus)

	accounts := r.Group("/accounts")
	accounts.GET("", s.handleListAccounts)
	accounts.POST("", s.handleAddAccount)
	accounts.DELETE("/:id", s.handleDeleteAccount)
	accounts.GET("/:id/activity", s.handleActivity)
	accounts.GET("/:id/trades", s.handleTrades)

	r.POST("/lifecycle/:signal", s.handleLifecycle)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("Starting HTTP server on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func abort(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}
