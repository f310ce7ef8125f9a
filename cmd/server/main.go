/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the TipSplit pay calendar server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (environment, then flag overrides)
  2. Initialize logger and SQLite store
  3. Create calendar service and group payroll context
  4. Seed the default schedule if the group has none
  5. Start server with graceful shutdown

CONFIGURATION:
  PORT        HTTP server port (default: 8080)
  DB_PATH     SQLite database path (default: tipsplit.db)
              Use ":memory:" for an in-memory database
  GROUP_KEY   Group served by the /api/group endpoints (default: default)
  APP_ENV     "production" for JSON logs, anything else for console

  Flags -port, -db, and -group override the environment.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/tipsplit.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run on different port
  ./server -port=3000

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/mattrap/TipSplit-sub000/api"
	"github.com/mattrap/TipSplit-sub000/calendar"
	"github.com/mattrap/TipSplit-sub000/logger"
	"github.com/mattrap/TipSplit-sub000/payroll"
	"github.com/mattrap/TipSplit-sub000/store/sqlite"
)

// Config holds the server configuration, read from the environment.
type Config struct {
	Port     int    `envconfig:"PORT" default:"8080"`
	DBPath   string `envconfig:"DB_PATH" default:"tipsplit.db"`
	GroupKey string `envconfig:"GROUP_KEY" default:"default"`
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
}

func main() {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Flag overrides
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	groupKey := flag.String("group", cfg.GroupKey, "group key served by /api/group")
	flag.Parse()

	logger.Init(cfg.AppEnv)
	defer logger.Sync()
	log := logger.Get()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalw("failed to initialize database", "error", err, "path", *dbPath)
	}
	defer store.Close()

	// Wire the domain layer
	svc := calendar.NewService(store)
	payrollCtx := payroll.NewContext(svc, store, *groupKey)

	// Seed the default schedule so a fresh install serves periods
	// immediately.
	if _, err := payrollCtx.EnsureDefaultSchedule(context.Background()); err != nil {
		log.Warnw("failed to seed default schedule", "error", err)
	}

	handler := api.NewHandler(svc, payrollCtx)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Infow("server starting",
			"addr", fmt.Sprintf("http://localhost:%d", *port),
			"group", *groupKey,
			"db", *dbPath,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Infow("server stopped")
}
