package main

import (
	"community-hub/auth"
	"community-hub/domain"
	"community-hub/internal"
	"community-hub/moderation"
	"community-hub/observability"
	"community-hub/relay"
	"community-hub/workers"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for websocket sessions and background workers.
func run() (int, error) {
	// 1. Configuration & Logger
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx := context.Background()

	// 2. Storage (BadgerDB & Bluge)
	options := buildBadgerOpts(config, logger, ctx)

	db, err := badger.Open(options)
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}

	if logger.Enabled(ctx, slog.LevelDebug) {
		endpoint := "/inspect"
		url := fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint)
		logger.Info("Debug Badger inspector available", "url", url)
		database.StartDebugServer(db, config.DebugPort, endpoint, MessageMapper)
	}

	defer func() {
		// Defer ensures the database lock is released and buffers are flushed before the function returns.
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeCfg := bluge.DefaultConfig(config.BlugeFilepath)
	blugeWriter, err := bluge.OpenWriter(blugeCfg)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	// 2.bis Moderation Dictionaries
	// The censored word lists ship inside the binary, so the relay never
	// depends on files being present next to it.
	censored, err := moderation.LoadEmbedded()
	if err != nil {
		return exitRuntime, fmt.Errorf("censored words loading failed: %w", err)
	}
	logger.Info(fmt.Sprintf("%d censored words loaded [%s]",
		len(censored.Words), strings.Join(censored.Languages, ", ")))

	moderator, err := moderation.NewModerator(censored.Words, charReplacement, logger)
	if err != nil {
		return exitRuntime, fmt.Errorf("moderator init failed: %w", err)
	}

	// 3. Setup Supervision & Relay Assembly
	indexFeed := make(chan domain.Message, config.BufferSize)
	procChan := make(chan observability.ProcessStats, 1)

	monitoring := observability.NewMonitoringManager(logger)
	registry := relay.NewRegistry()
	messageStore := relay.NewBadgerStore(db, logger)
	searcher := relay.NewBlugeSearcher(blugeWriter, logger)
	userStore := relay.NewUserStore(db)
	tokens := auth.NewTokenManager(config.AuthSecret, "community-hub", config.AuthTokenDuration)
	authService := relay.NewAuthService(userStore, tokens)

	service := relay.NewService(
		logger, registry,
		messageStore,
		searcher,
		&moderator,
		monitoring,
		indexFeed,
		config.LimitMessages,
	)
	server := relay.NewServer(
		logger, service, authService, tokens, monitoring,
		config.ConnectionBufferSize, config.WriteTimeout,
	)

	sup := workers.NewSupervisor(logger)
	sup.Add(
		workers.NewIndexerWorker(indexFeed, searcher, monitoring, logger),
		workers.NewHeartbeatWorker(logger, procChan, config.MetricInterval),
	)

	// 4. Context & Signals
	// NotifyContext captures OS signals and cancels the context to trigger a shutdown.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Error (HTTP server)
	errChan := make(chan error, 1)

	// 5. Start the Engine (Workers and Monitoring)
	go sup.Run(ctx)
	go monitoring.Listen(ctx, procChan)

	// 6. HTTP Server Setup
	// BaseContext hands the run context to every request, so a shutdown
	// signal ends the websocket read loops along with everything else.
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{
		Addr:    address,
		Handler: server.Handler(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	// Use an error channel to capture ListenAndServe() issues asynchronously.
	go func() {
		logger.Info("Starting relay server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("relay server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	// The execution blocks here until either a signal is received or the server crashes.
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 8. Final Cleanup (Graceful Shutdown)
	// We allow in-flight requests to finish and workers to drain their channels.
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	sup.Stop()
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}

// MessageMapper renders relay records in the badger inspector. Message keys
// carry the community and timestamp, user keys the email, and everything is
// stored as JSON.
func MessageMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)

	switch {
	case strings.HasPrefix(key, "msg:"):
		row.Type = "MESSAGE"
		var m domain.Message
		if err := json.Unmarshal(val, &m); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Detail = fmt.Sprintf("[%s] %s: %s", m.CommunityID, m.DisplayName, m.Text)

	case strings.HasPrefix(key, "user:"):
		row.Type = "USER"
		var u domain.User
		if err := json.Unmarshal(val, &u); err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		// Never surface the password hash, even in a debug view.
		row.Detail = fmt.Sprintf("%s (%s)", u.DisplayName, strings.Join(u.Roles, ", "))
	}

	return row
}
