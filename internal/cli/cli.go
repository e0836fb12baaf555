package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"

	"powerplaylists/internal/app"
	"powerplaylists/internal/config"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// New builds the root command. All output goes to outW.
func New(outW io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "powerplaylists",
		Usage: "Declaratively compose and sync Spotify playlists",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Logging level: 'debug', 'info', 'warn', or 'error'",
				Value: "info",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log output format: 'text' or 'json'",
				Value: "text",
			},
		},
		Commands: []*cli.Command{
			runCommand(outW),
			validateCommand(outW),
			initCommand(outW),
		},
	}
}

func runCommand(outW io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Evaluate the node graph and reconcile output playlists",
		Flags: append(userConfigFlags(),
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Number of concurrent workers for the evaluator",
				Value: 4,
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Compute and report diffs without mutating playlists",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Reconcile playlists even when unchanged since the last run",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			appConfig, err := appConfigFrom(cmd)
			if err != nil {
				return err
			}
			appConfig.WorkerCount = cmd.Int("workers")
			appConfig.DryRun = cmd.Bool("dry-run")
			appConfig.Force = cmd.Bool("force")

			a, err := app.NewApp(outW, appConfig)
			if err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}
			if err := a.Run(ctx, appConfig); err != nil {
				return &ExitError{Code: 1, Message: err.Error()}
			}
			return nil
		},
	}
}

func validateCommand(outW io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Check node definitions without contacting Spotify",
		Flags: userConfigFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			appConfig, err := appConfigFrom(cmd)
			if err != nil {
				return err
			}
			a, err := app.NewApp(outW, appConfig)
			if err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}
			if err := a.Validate(ctx, appConfig); err != nil {
				return &ExitError{Code: 1, Message: err.Error()}
			}
			return nil
		},
	}
}

func initCommand(outW io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write an example application config file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "app-config",
				Aliases: []string{"c"},
				Usage:   "Path for the new configuration file",
				Value:   "config.toml",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.String("app-config")
			if err := config.CreateConfigFile(path); err != nil {
				return &ExitError{Code: 1, Message: err.Error()}
			}
			fmt.Fprintf(outW, "Wrote %s. Fill in your Spotify credentials.\n", path)
			return nil
		},
	}
}

func userConfigFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "app-config",
			Aliases: []string{"c"},
			Usage:   "Path to the application configuration file",
		},
		&cli.StringSliceFlag{
			Name:    "user-config",
			Aliases: []string{"u"},
			Usage:   "Path to a YAML node-definition file (repeatable)",
		},
	}
}

// appConfigFrom validates the shared flags and assembles an AppConfig.
func appConfigFrom(cmd *cli.Command) (*app.AppConfig, error) {
	logFormat := strings.ToLower(cmd.String("log-format"))
	logLevel := strings.ToLower(cmd.String("log-level"))
	if err := app.ValidateLogging(logLevel, logFormat); err != nil {
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}

	userConfigs := cmd.StringSlice("user-config")
	if len(userConfigs) == 0 {
		return nil, &ExitError{Code: 2, Message: "at least one --user-config file is required"}
	}

	return &app.AppConfig{
		ConfigPath:      cmd.String("app-config"),
		UserConfigPaths: userConfigs,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
	}, nil
}
