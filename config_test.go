package furlong

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tfkr-ae/furlong/feed"
)

func TestLoadConfig(t *testing.T) {
	t.Run("should write the defaults on first run", func(t *testing.T) {
		dir := t.TempDir()
		cfg, err := LoadConfig(dir)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
			t.Fatalf("\nwanted:\nconfig.yaml written\ngot:\n%v", err)
		}
		if cfg.ListenPort != "8080" || cfg.GuestMessageLimit != 10 || cfg.ProcessingDelay != 5*time.Second {
			t.Fatalf("\nwanted:\ndefaults\ngot:\n%+v", cfg)
		}
		if cfg.Path("furlong.db") != filepath.Join(dir, "furlong.db") {
			t.Fatalf("\nwanted:\n%s\ngot:\n%s", filepath.Join(dir, "furlong.db"), cfg.Path("furlong.db"))
		}
	})

	t.Run("should read an existing file", func(t *testing.T) {
		dir := t.TempDir()
		content := `listen_port: "9090"
guest_message_limit: 3
processing_delay: 250ms
admins: [editor]
api_tokens:
  secret: editor
feeds:
  - name: wire
    url: https://wire.example/rss
    category: tips
    exclude: ["title:(?i)greyhound"]
`
		if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0600); err != nil {
			t.Fatalf("writing config: %v", err)
		}

		cfg, err := LoadConfig(dir)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if cfg.ListenPort != "9090" || cfg.GuestMessageLimit != 3 || cfg.ProcessingDelay != 250*time.Millisecond {
			t.Fatalf("\nwanted:\nfile values\ngot:\n%+v", cfg)
		}
		if user, ok := cfg.UserForToken("secret"); !ok || user != "editor" || !cfg.IsAdmin(user) {
			t.Fatalf("\nwanted:\neditor admin\ngot:\n%s %v", user, ok)
		}
		if len(cfg.Feeds) != 1 || cfg.Feeds[0].Category != "tips" || len(cfg.Feeds[0].Exclude) != 1 {
			t.Fatalf("\nwanted:\none tips feed\ngot:\n%+v", cfg.Feeds)
		}
	})

	t.Run("should reject invalid values", func(t *testing.T) {
		dir := t.TempDir()
		content := "feeds:\n  - name: wire\n    url: https://wire.example\n    category: gossip\n"
		os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0600)

		_, err := LoadConfig(dir)
		if err == nil || !strings.Contains(err.Error(), "gossip") {
			t.Fatalf("\nwanted:\nunknown category error\ngot:\n%v", err)
		}
	})

	t.Run("should let the environment override the file", func(t *testing.T) {
		t.Setenv("FURLONG_LISTEN_PORT", "7070")
		cfg, err := LoadConfig(t.TempDir())
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if cfg.ListenPort != "7070" {
			t.Fatalf("\nwanted:\n7070\ngot:\n%s", cfg.ListenPort)
		}
	})
}

func TestConfig_Feeds(t *testing.T) {
	t.Run("should add and remove feeds and save the file", func(t *testing.T) {
		dir := t.TempDir()
		cfg, err := LoadConfig(dir)
		if err != nil {
			t.Fatalf("loading config: %v", err)
		}

		wire := feed.Config{Name: "wire", URL: "https://wire.example/rss", Category: "racing"}
		added, err := cfg.WithFeed(wire)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if len(cfg.Feeds) != 0 {
			t.Fatalf("\nwanted:\noriginal config untouched\ngot:\n%+v", cfg.Feeds)
		}
		if _, err := added.WithFeed(wire); !errors.Is(err, ErrFeedExists) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrFeedExists, err)
		}

		reloaded, err := LoadConfig(dir)
		if err != nil {
			t.Fatalf("reloading config: %v", err)
		}
		if len(reloaded.Feeds) != 1 || reloaded.Feeds[0].URL != wire.URL {
			t.Fatalf("\nwanted:\n[%+v]\ngot:\n%+v", wire, reloaded.Feeds)
		}

		removed, err := added.WithoutFeed("wire")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if _, err := removed.WithoutFeed("wire"); !errors.Is(err, ErrFeedNotFound) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrFeedNotFound, err)
		}
	})

	t.Run("should refuse a feed with bad rules", func(t *testing.T) {
		cfg := DefaultConfig()
		_, err := cfg.WithFeed(feed.Config{Name: "bad", URL: "https://x.example", Include: []string{"("}})
		if err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}
		if len(cfg.Feeds) != 0 {
			t.Fatalf("\nwanted:\nno feeds\ngot:\n%+v", cfg.Feeds)
		}
	})
}

func TestConfig_AnalystScriptSource(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "analyst.lua"), []byte("-- script"), 0600)

	cfg := &Config{ConfigDir: dir, AnalystScript: "analyst.lua"}
	src, err := cfg.AnalystScriptSource()
	if err != nil || src != "-- script" {
		t.Fatalf("\nwanted:\n-- script\ngot:\n%q %v", src, err)
	}

	cfg.AnalystScript = "missing.lua"
	if _, err := cfg.AnalystScriptSource(); err == nil {
		t.Fatalf("\nwanted:\nerror\ngot:\nnil")
	}
}
