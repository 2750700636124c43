package furlong

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"github.com/tfkr-ae/furlong/analyst"
	"github.com/tfkr-ae/furlong/feed"
	"github.com/tfkr-ae/furlong/news"
	"github.com/tfkr-ae/furlong/onboarding"
)

// ErrFeedExists is returned when adding a feed whose name is already configured.
var ErrFeedExists = errors.New("feed already configured")

// ErrFeedNotFound is returned when removing a feed that is not configured.
var ErrFeedNotFound = errors.New("feed not configured")

// Config is the service configuration, read from config.yaml in the config directory and
// overridden by FURLONG_* environment variables.
type Config struct {
	viper             *viper.Viper
	ConfigDir         string            `mapstructure:"config_dir"`
	ListenAddress     string            `mapstructure:"listen_address"`
	ListenPort        string            `mapstructure:"listen_port"`
	Database          string            `mapstructure:"database"`
	GuestMessageLimit int               `mapstructure:"guest_message_limit"`
	ProcessingDelay   time.Duration     `mapstructure:"processing_delay"`
	FeedInterval      time.Duration     `mapstructure:"feed_interval"`
	AnalystScript     string            `mapstructure:"analyst_script"` // Lua file, relative to the config dir
	MediaDir          string            `mapstructure:"media_dir"`      // Uploaded hero media, relative to the config dir
	Feeds             []feed.Config     `mapstructure:"feeds"`
	APITokens         map[string]string `mapstructure:"api_tokens"` // token -> user id
	Admins            []string          `mapstructure:"admins"`     // user ids allowed on /admin
	AllowedOrigins    []string          `mapstructure:"allowed_origins"`
	TLSCert           string            `mapstructure:"tls_cert"`
	TLSKey            string            `mapstructure:"tls_key"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("FURLONG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_address", "127.0.0.1")
	v.SetDefault("listen_port", "8080")
	v.SetDefault("database", "furlong.db")
	v.SetDefault("guest_message_limit", analyst.DefaultGuestLimit)
	v.SetDefault("processing_delay", onboarding.DefaultProcessingDelay.String())
	v.SetDefault("feed_interval", feed.DefaultInterval.String())
	v.SetDefault("analyst_script", "")
	v.SetDefault("media_dir", "media")
	v.SetDefault("feeds", []feed.Config{})
	v.SetDefault("api_tokens", map[string]string{})
	v.SetDefault("admins", []string{})
	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("tls_cert", "")
	v.SetDefault("tls_key", "")
	return v
}

// DefaultConfig returns the configuration used when no config directory is given.
func DefaultConfig() *Config {
	cfg := &Config{viper: newViper()}
	// Defaults always decode.
	_ = cfg.viper.Unmarshal(cfg)
	return cfg
}

// LoadConfig reads config.yaml from configDir, writing one with the defaults when missing.
func LoadConfig(configDir string) (*Config, error) {
	v := newViper()
	v.AddConfigPath(configDir)

	err := v.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file : %w", err)
		}
		if err := v.SafeWriteConfig(); err != nil {
			return nil, fmt.Errorf("writing config file : %w", err)
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading new config file : %w", err)
		}
	}

	cfg := &Config{viper: v}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config to struct : %w", err)
	}
	cfg.ConfigDir = configDir
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values viper cannot check for us.
func (cfg *Config) Validate() error {
	if cfg.GuestMessageLimit < 0 {
		return fmt.Errorf("guest_message_limit must not be negative, got %d", cfg.GuestMessageLimit)
	}
	if cfg.ProcessingDelay < 0 {
		return fmt.Errorf("processing_delay must not be negative, got %s", cfg.ProcessingDelay)
	}
	for _, f := range cfg.Feeds {
		if f.Name == "" || f.URL == "" {
			return errors.New("every feed needs a name and a url")
		}
		if f.Category != "" && !news.ValidCategory(f.Category) {
			return fmt.Errorf("feed %s has unknown category %q", f.Name, f.Category)
		}
		if _, err := ScopeFromFeed(f); err != nil {
			return err
		}
	}
	return nil
}

// Path resolves name against the config directory unless it is absolute.
func (cfg *Config) Path(name string) string {
	if name == "" || filepath.IsAbs(name) || cfg.ConfigDir == "" {
		return name
	}
	return filepath.Join(cfg.ConfigDir, name)
}

// UserForToken returns the user id a bearer token belongs to.
func (cfg *Config) UserForToken(token string) (string, bool) {
	userID, ok := cfg.APITokens[token]
	return userID, ok && userID != ""
}

// IsAdmin reports whether userID may use the admin endpoints.
func (cfg *Config) IsAdmin(userID string) bool {
	return userID != "" && slices.Contains(cfg.Admins, userID)
}

// AnalystScriptSource reads the configured Lua responder script. An empty path yields "".
func (cfg *Config) AnalystScriptSource() (string, error) {
	if cfg.AnalystScript == "" {
		return "", nil
	}
	src, err := os.ReadFile(cfg.Path(cfg.AnalystScript))
	if err != nil {
		return "", fmt.Errorf("reading analyst script: %w", err)
	}
	return string(src), nil
}

// WithFeed returns a copy of cfg with f appended, saved to the configuration file.
// cfg itself is left untouched.
func (cfg *Config) WithFeed(f feed.Config) (*Config, error) {
	if slices.ContainsFunc(cfg.Feeds, func(existing feed.Config) bool { return existing.Name == f.Name }) {
		return nil, ErrFeedExists
	}
	return cfg.withFeeds(append(slices.Clone(cfg.Feeds), f))
}

// WithoutFeed returns a copy of cfg without the named feed, saved to the configuration
// file. cfg itself is left untouched.
func (cfg *Config) WithoutFeed(name string) (*Config, error) {
	feeds := slices.DeleteFunc(slices.Clone(cfg.Feeds), func(f feed.Config) bool {
		return f.Name == name
	})
	if len(feeds) == len(cfg.Feeds) {
		return nil, ErrFeedNotFound
	}
	return cfg.withFeeds(feeds)
}

func (cfg *Config) withFeeds(feeds []feed.Config) (*Config, error) {
	next := *cfg
	next.Feeds = feeds
	if err := next.Validate(); err != nil {
		return nil, err
	}
	if cfg.ConfigDir == "" {
		return &next, nil
	}

	raw := make([]map[string]any, len(feeds))
	for i, f := range feeds {
		raw[i] = map[string]any{
			"name":     f.Name,
			"url":      f.URL,
			"category": f.Category,
			"include":  f.Include,
			"exclude":  f.Exclude,
		}
	}

	// The shared viper is read by the file watcher, so the write goes through its own.
	v := newViper()
	v.AddConfigPath(cfg.ConfigDir)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file : %w", err)
	}
	v.Set("feeds", raw)
	if err := v.WriteConfig(); err != nil {
		return nil, fmt.Errorf("failed to save configuration: %w", err)
	}
	return &next, nil
}

// Watch reloads the configuration file whenever it changes and passes the new value to
// onChange. Invalid files are reported to onError and otherwise ignored.
func (cfg *Config) Watch(onChange func(*Config), onError func(error)) {
	cfg.viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next := &Config{viper: cfg.viper}
		if err := cfg.viper.Unmarshal(next); err != nil {
			onError(fmt.Errorf("unmarshalling changed config: %w", err))
			return
		}
		next.ConfigDir = cfg.ConfigDir
		if err := next.Validate(); err != nil {
			onError(fmt.Errorf("validating changed config %s: %w", e.Name, err))
			return
		}
		onChange(next)
	})
	cfg.viper.WatchConfig()
}
