// Package commands implements the furlong command line: the API server and the
// maintenance commands that share its configuration directory.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tfkr-ae/furlong"
	"github.com/tfkr-ae/furlong/db"
)

var (
	home    string
	verbose bool
)

// Execute runs the root command.
func Execute() error {
	root := &cobra.Command{
		Use:           "furlong",
		Short:         "Horse racing news, form and odds comparison service",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserConfigDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, "furlong")
			}
			return os.MkdirAll(home, 0o700)
		},
	}

	root.PersistentFlags().StringVar(&home, "config-dir", "", "config dir (default <user config dir>/furlong)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output")

	root.AddCommand(serveCmd(), migrateCmd(), seedCmd(), importFeedCmd())
	return root.Execute()
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openService loads the configuration from the config dir and opens the database it names.
func openService(logger *slog.Logger) (*furlong.Service, error) {
	cfg, err := furlong.LoadConfig(home)
	if err != nil {
		return nil, err
	}
	dbConn, err := db.New(cfg.Path(cfg.Database))
	if err != nil {
		return nil, err
	}
	repo := db.NewRepo(dbConn)

	svc, err := furlong.New(
		furlong.WithLogger(logger),
		furlong.WithConfig(cfg),
		furlong.WithRepo(repo),
	)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("starting furlong: %w", err)
	}
	return svc, nil
}
