package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"powerplaylists/internal/config"
	"powerplaylists/internal/provider"
	"powerplaylists/internal/spotify"
)

// AppConfig holds all the necessary configuration for an App instance to run.
type AppConfig struct {
	ConfigPath      string
	UserConfigPaths []string
	LogFormat       string
	LogLevel        string
	WorkerCount     int
	DryRun          bool
	Force           bool
}

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *config.Config
	provider provider.Provider
}

// Option customizes an App, mainly for tests.
type Option func(*App)

// WithProvider injects a backend, bypassing the Spotify client.
func WithProvider(p provider.Provider) Option {
	return func(a *App) { a.provider = p }
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger.
func NewApp(outW io.Writer, appConfig *AppConfig, opts ...Option) (*App, error) {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	logger.Debug("Logger configured successfully.")

	cfg := config.DefaultConfig()
	if appConfig.ConfigPath != "" {
		loaded, err := config.LoadConfig(appConfig.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
		logger.Debug("Application configuration loaded.", "path", appConfig.ConfigPath)
	}

	a := &App{
		outW:   outW,
		logger: logger,
		config: cfg,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// ensureProvider lazily constructs the Spotify backend unless a provider
// was injected. Validation-only commands never reach this.
func (a *App) ensureProvider(ctx context.Context) error {
	if a.provider != nil {
		return nil
	}
	creds := spotify.Credentials{
		ClientID:     a.config.Spotify.ClientID,
		ClientSecret: a.config.Spotify.ClientSecret,
		AccessToken:  a.config.Spotify.AccessToken,
		RefreshToken: a.config.Spotify.RefreshToken,
	}
	client, err := spotify.New(ctx, creds, a.config.Spotify.RequestsPerSecond)
	if err != nil {
		return fmt.Errorf("failed to initialize spotify client: %w", err)
	}
	a.provider = client
	return nil
}
