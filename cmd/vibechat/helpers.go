package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	vibechat "github.com/vibechat-dev/vibechat-go"
)

// newLogger returns a console logger at debug level with --verbose,
// otherwise a no-op logger.
func newLogger() zerolog.Logger {
	if !verbose {
		return zerolog.Nop()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(zerolog.DebugLevel).
		With().Timestamp().Logger()
}

// newClient builds an API client from the saved configuration.
func newClient() (*vibechat.Client, *Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	var opts []vibechat.ClientOption
	if cfg.Server.BaseURL != "" {
		opts = append(opts, vibechat.WithBaseURL(cfg.Server.BaseURL))
	}
	opts = append(opts, vibechat.WithLogger(newLogger()))
	return vibechat.NewClient(opts...), cfg, nil
}

// newSession builds a coordinator and signs in with the saved session.
func newSession(ctx context.Context) (*vibechat.Coordinator, *Config, error) {
	client, cfg, err := newClient()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Session.Username == "" {
		return nil, nil, fmt.Errorf("not signed in: run 'vibechat login' first")
	}
	coord := vibechat.NewCoordinator(client)
	if err := coord.SignIn(ctx, cfg.Session.Username, cfg.Session.DisplayName); err != nil {
		return nil, nil, err
	}
	return coord, cfg, nil
}
