package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/pflag"

	"motion-live-client/config"
	"motion-live-client/internal/db"
	"motion-live-client/internal/moderator"
	"motion-live-client/internal/render"
	"motion-live-client/internal/store"
	"motion-live-client/internal/transport"
	"motion-live-client/internal/tui"
	"motion-live-client/internal/upstream"
	"motion-live-client/internal/voter"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "motiontui:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	configPath := pflag.String("config", os.Getenv("CONFIG_PATH"), "path to the YAML config file")
	role := pflag.String("role", "", "session role: voter or moderator (overrides config)")
	sessionID := pflag.String("session", "", "voting session UUID (overrides config)")
	logOutput := pflag.String("log-output", "", "append log lines to this file (default: discard)")
	width := pflag.Int("width", 72, "render width in columns")
	pflag.Parse()

	// The screen belongs to the UI; logs go to a file or nowhere.
	log.SetOutput(io.Discard)
	if *logOutput != "" {
		f, err := os.OpenFile(*logOutput, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log output: %w", err)
		}
		defer f.Close()
		log.SetOutput(f)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if *role != "" {
		cfg.Session.Role = *role
	}
	if *sessionID != "" {
		cfg.Session.ID = *sessionID
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	backend, err := upstream.NewClient(cfg.Backend.BaseURL, cfg.Session.ID, cfg.Backend.Credentials, cfg.Backend.Timeout)
	if err != nil {
		return err
	}

	var appStore store.Store
	if gormDB, err := db.Init(&cfg.Database); err != nil {
		log.Printf("database unavailable, preferences stay in memory: %v", err)
	} else {
		appStore = store.NewGormStore(gormDB)
	}
	prefs := store.NewPreferences(appStore)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	topts := transport.Options{
		Name:              cfg.Session.Role,
		HeartbeatInterval: cfg.Transport.HeartbeatInterval,
		PollInterval:      cfg.Transport.PollInterval,
		Backoff:           cfg.Transport.Backoff,
	}
	renderer := render.New(os.Stdout, *width)

	var model tea.Model
	var session interface{ Run(context.Context) }
	switch cfg.Session.Role {
	case config.RoleModerator:
		dialer := transport.WebsocketDialer{URL: backend.WebsocketURL("admin"), Origin: backend.Origin(), Header: backend.Header()}
		s := moderator.NewSession(backend, dialer, prefs, moderator.Options{
			SessionID: cfg.Session.ID,
			Clock:     clockwork.NewRealClock(),
			Transport: topts,
			TallyTTL:  cfg.Moderator.TallyTTL,
		})
		model, session = tui.NewModeratorModel(ctx, s, renderer), s
	default:
		dialer := transport.WebsocketDialer{URL: backend.WebsocketURL("voter"), Origin: backend.Origin(), Header: backend.Header()}
		s := voter.NewSession(backend, dialer, prefs, voter.Options{
			SessionID: cfg.Session.ID,
			Clock:     clockwork.NewRealClock(),
			Transport: topts,
		})
		model, session = tui.NewVoterModel(ctx, s, renderer), s
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		session.Run(ctx)
	}()

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = program.Run()
	cancel()
	<-done
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("terminal UI failed: %w", err)
	}
	return nil
}
