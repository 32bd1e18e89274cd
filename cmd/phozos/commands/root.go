// Package commands implements the phozos command line.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/phozos/phozos-client/internal/apierr"
	"github.com/phozos/phozos-client/internal/app"
	"github.com/phozos/phozos-client/internal/config"
	"github.com/phozos/phozos-client/internal/logging"
	"github.com/phozos/phozos-client/internal/query"
	"github.com/urfave/cli/v3"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string, version string) error {
	return newRootCommand(version).Run(ctx, args)
}

func newRootCommand(version string) *cli.Command {
	return &cli.Command{
		Name:    "phozos",
		Usage:   "Phozos API client",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "output format (json|yaml)",
				Value:   formatJSON,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error), overrides LOG_LEVEL",
			},
		},
		Commands: []*cli.Command{
			authCommand(),
			csrfCommand(),
			requestCommand(),
			universitiesCommand(),
			forumCommand(),
			exportCommand(),
			documentsCommand(),
			devserverCommand(),
		},
	}
}

// reportedError is an error the user has already been shown through the
// notifier.
type reportedError struct {
	err error
}

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

// Reported reports whether err was already shown to the user.
func Reported(err error) bool {
	var r reportedError
	return errors.As(err, &r)
}

// stderrNotifier prints mutation failures for the user.
type stderrNotifier struct {
	w io.Writer
}

func (n stderrNotifier) Notify(_ context.Context, note query.Notification) {
	fmt.Fprintf(n.w, "%s: %s\n", note.Title, note.Message)
}

// loadApp loads configuration and wires the client. The caller must
// Close the returned App.
func loadApp(cmd *cli.Command) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	level := cfg.LogLevel
	if l := cmd.String("log-level"); l != "" {
		level = l
	}

	root := cmd.Root()

	return app.New(cfg, app.Options{
		Logger:   logging.NewLogger(cfg.Environment, level),
		Notifier: stderrNotifier{w: root.ErrWriter},
	})
}

// mutationError marks failures of notifying mutations as already shown.
// Only API errors went through the notifier; anything raised before the
// request was sent is returned as-is.
func mutationError(err error) error {
	if _, ok := apierr.As(err); !ok {
		return err
	}

	return reportedError{err: err}
}
