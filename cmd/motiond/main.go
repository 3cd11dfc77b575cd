package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/pflag"

	"motion-live-client/config"
	"motion-live-client/internal/api"
	"motion-live-client/internal/db"
	"motion-live-client/internal/moderator"
	"motion-live-client/internal/notification"
	"motion-live-client/internal/store"
	"motion-live-client/internal/transport"
	"motion-live-client/internal/upstream"
	"motion-live-client/internal/voter"
)

func main() {
	logger := log.New(os.Stdout, "motiond ", log.LstdFlags)

	if err := godotenv.Load(); err != nil {
		logger.Println("No .env file found")
	}

	configPath := pflag.String("config", os.Getenv("CONFIG_PATH"), "path to the YAML config file")
	role := pflag.String("role", "", "session role: voter or moderator (overrides config)")
	sessionID := pflag.String("session", "", "voting session UUID (overrides config)")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %q: %v", *configPath, err)
	}
	if *role != "" {
		cfg.Session.Role = *role
	}
	if *sessionID != "" {
		cfg.Session.ID = *sessionID
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}
	logger.Printf("configuration loaded; %s of session %s", cfg.Session.Role, cfg.Session.ID)

	backend, err := upstream.NewClient(cfg.Backend.BaseURL, cfg.Session.ID, cfg.Backend.Credentials, cfg.Backend.Timeout)
	if err != nil {
		logger.Fatalf("failed to create backend client: %v", err)
	}

	// Persistence is optional: without a database, preferences live in
	// memory and push subscriptions are unavailable.
	var appStore store.Store
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Printf("database unavailable, continuing without persistence: %v", err)
	} else {
		appStore = store.NewGormStore(gormDB)
	}
	prefs := store.NewPreferences(appStore)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var webpushOptions *webpush.Options
	var pool *notification.WorkerPool
	if cfg.Push.Enabled() && appStore != nil {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool = notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions)
		pool.Start(ctx)
	}

	topts := transport.Options{
		Name:              cfg.Session.Role,
		HeartbeatInterval: cfg.Transport.HeartbeatInterval,
		PollInterval:      cfg.Transport.PollInterval,
		Backoff:           cfg.Transport.Backoff,
	}
	handler := api.NewHandler(appStore, webpushOptions, cfg.Session.ID)

	var run func(context.Context)
	switch cfg.Session.Role {
	case config.RoleModerator:
		dialer := transport.WebsocketDialer{URL: backend.WebsocketURL("admin"), Origin: backend.Origin(), Header: backend.Header()}
		session := moderator.NewSession(backend, dialer, prefs, moderator.Options{
			SessionID: cfg.Session.ID,
			Clock:     clockwork.NewRealClock(),
			Transport: topts,
			TallyTTL:  cfg.Moderator.TallyTTL,
		})
		handler.WithModerator(session)
		run = session.Run
	default:
		dialer := transport.WebsocketDialer{URL: backend.WebsocketURL("voter"), Origin: backend.Origin(), Header: backend.Header()}
		opts := voter.Options{
			SessionID: cfg.Session.ID,
			Clock:     clockwork.NewRealClock(),
			Transport: topts,
		}
		if pool != nil {
			opts.OnMotionOpened = pool.MotionOpened(cfg.Session.ID)
		}
		session := voter.NewSession(backend, dialer, prefs, opts)
		handler.WithVoter(session)
		run = session.Run
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		run(ctx)
	}()

	var server *http.Server
	if cfg.Server.Port > 0 {
		server = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: api.NewRouter(handler, cfg.Server),
		}
		go func() {
			logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatalf("HTTP server ListenAndServe: %v", err)
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP server Shutdown: %v", err)
		}
	}

	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Println("session did not stop in time")
	}
	logger.Println("Server gracefully stopped")
}
