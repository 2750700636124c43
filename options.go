package furlong

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/tfkr-ae/furlong/analyst"
	"github.com/tfkr-ae/furlong/domain"
	"github.com/tfkr-ae/furlong/live"
)

// WithOptions applies a series of configuration functions to the service.
// Each option function can modify the service and return an error if it fails.
func (svc *Service) WithOptions(options ...func(*Service) error) error {
	for _, option := range options {
		err := option(svc)
		if err != nil {
			return fmt.Errorf("applying option on furlong : %w", err)
		}
	}
	return nil
}

// WithConfigDir configures the service to use the specified configuration directory.
// It creates the directory if it doesn't exist and initializes config.yaml using Viper.
func WithConfigDir(appConfigDir string) func(*Service) error {
	return func(svc *Service) error {
		_, err := os.ReadDir(appConfigDir)
		if err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("checking if directory exists %s: %w", appConfigDir, err)
			}
			svc.Logger.Info("creating config dir", "path", appConfigDir)
			if err := os.MkdirAll(appConfigDir, 0700); err != nil {
				return fmt.Errorf("creating config dir %s: %w", appConfigDir, err)
			}
		}

		cfg, err := LoadConfig(appConfigDir)
		if err != nil {
			return err
		}
		svc.swapConfig(cfg)
		return nil
	}
}

// WithConfig sets the configuration directly, mostly for tests and embedding.
func WithConfig(cfg *Config) func(*Service) error {
	return func(svc *Service) error {
		if cfg == nil {
			return errors.New("config is nil")
		}
		if cfg.viper == nil {
			cfg.viper = newViper()
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		svc.swapConfig(cfg)
		return nil
	}
}

// WithLogger sets the structured logger. A nil logger discards output.
func WithLogger(logger *slog.Logger) func(*Service) error {
	return func(svc *Service) error {
		if logger == nil {
			logger = slog.New(slog.DiscardHandler)
		}
		svc.Logger = logger
		return nil
	}
}

// WithRepo sets the repository, closing any previous one.
func WithRepo(repo Repository) func(*Service) error {
	return func(svc *Service) error {
		if repo == nil {
			return errors.New("repository is nil")
		}
		if svc.Repo != nil {
			if err := svc.Repo.Close(); err != nil {
				return err
			}
		}
		svc.Repo = repo
		return nil
	}
}

// WithHub sets the live odds hub instead of building one from the configuration.
func WithHub(hub *live.Hub) func(*Service) error {
	return func(svc *Service) error {
		if hub == nil {
			return errors.New("hub is nil")
		}
		svc.Hub = hub
		return nil
	}
}

// WithAnalyst sets the AI Analyst instead of building one from the configuration.
func WithAnalyst(a *analyst.Analyst) func(*Service) error {
	return func(svc *Service) error {
		if a == nil {
			return errors.New("analyst is nil")
		}
		svc.Analyst = a
		return nil
	}
}

// WithLogHandler takes a handler function that will be executed on each persisted log
func WithLogHandler(handler func(log *domain.Log)) func(*Service) error {
	return func(svc *Service) error {
		if svc.OnLog != nil {
			return errors.New("service already has a log handler defined")
		}
		svc.OnLog = handler
		return nil
	}
}
