package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/platy/smtp-dump/internal/inbox"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"INBOX_DIR", "SMTPDUMP_INBOX_DIR", "SMTPDUMP_LISTEN_ADDR", "SMTPDUMP_MAX_RECIPIENTS"} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %s", err)
	}

	if cfg.InboxDir != "inbox" {
		t.Errorf("InboxDir = '%s'", cfg.InboxDir)
	}
	if cfg.StagingDir != "inbox.staging" {
		t.Errorf("StagingDir = '%s'", cfg.StagingDir)
	}
	if cfg.ListenAddr != ":25" {
		t.Errorf("ListenAddr = '%s'", cfg.ListenAddr)
	}
	if cfg.CommandTimeout != 5*time.Minute || cfg.DataTimeout != 10*time.Minute {
		t.Errorf("timeouts = %s / %s", cfg.CommandTimeout, cfg.DataTimeout)
	}
	if !cfg.ReverseDNS {
		t.Error("ReverseDNS should default to true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %s", err)
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "smtpd.yaml")
	data := []byte(`
hostname: mx.example.org
listen_addr: 127.0.0.1:2525
inbox_dir: /var/mail/inbox
staging_dir: /var/mail/tmp
layout: sender
command_timeout: 30s
max_recipients: 5
reverse_dns: false
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %s", err)
	}

	if cfg.Hostname != "mx.example.org" || cfg.ListenAddr != "127.0.0.1:2525" {
		t.Errorf("got hostname '%s' addr '%s'", cfg.Hostname, cfg.ListenAddr)
	}
	if cfg.StagingDir != "/var/mail/tmp" {
		t.Errorf("StagingDir = '%s'", cfg.StagingDir)
	}
	if cfg.InboxLayout() != inbox.LayoutSender {
		t.Errorf("layout = %s", cfg.InboxLayout())
	}
	if cfg.CommandTimeout != 30*time.Second {
		t.Errorf("CommandTimeout = %s", cfg.CommandTimeout)
	}
	// untouched keys keep their defaults
	if cfg.DataTimeout != 10*time.Minute {
		t.Errorf("DataTimeout = %s", cfg.DataTimeout)
	}
	if cfg.MaxRecipients != 5 || cfg.ReverseDNS {
		t.Errorf("MaxRecipients = %d ReverseDNS = %t", cfg.MaxRecipients, cfg.ReverseDNS)
	}

	server := cfg.Server()
	if server.Domain != "mx.example.org" || server.MaxRecipients != 5 || server.CommandTimeout != 30*time.Second {
		t.Errorf("Server() = %+v", server)
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %s", err)
	}
	if cfg.InboxDir != "inbox" {
		t.Errorf("InboxDir = '%s'", cfg.InboxDir)
	}
}

func TestLoadEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("INBOX_DIR", "/srv/inbox")
	t.Setenv("SMTPDUMP_LISTEN_ADDR", ":2525")
	t.Setenv("SMTPDUMP_MAX_RECIPIENTS", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %s", err)
	}

	if cfg.InboxDir != "/srv/inbox" {
		t.Errorf("InboxDir = '%s'", cfg.InboxDir)
	}
	if cfg.StagingDir != "/srv/inbox.staging" {
		t.Errorf("StagingDir = '%s'", cfg.StagingDir)
	}
	if cfg.ListenAddr != ":2525" {
		t.Errorf("ListenAddr = '%s'", cfg.ListenAddr)
	}
	if cfg.MaxRecipients != 7 {
		t.Errorf("MaxRecipients = %d", cfg.MaxRecipients)
	}
}

func TestLoadEnvPrefixWins(t *testing.T) {
	clearEnv(t)
	t.Setenv("INBOX_DIR", "/old")
	t.Setenv("SMTPDUMP_INBOX_DIR", "/new")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %s", err)
	}
	if cfg.InboxDir != "/new" {
		t.Errorf("InboxDir = '%s'", cfg.InboxDir)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Hostname:       "mx.example.org",
			ListenAddr:     ":25",
			InboxDir:       "inbox",
			StagingDir:     "staging",
			Layout:         "flat",
			CommandTimeout: time.Minute,
			MaxLineLength:  512,
			MaxMessageSize: 1 << 20,
			MaxRecipients:  10,
		}
	}

	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"no inbox", func(c *Config) { c.InboxDir = "" }, false},
		{"same dirs", func(c *Config) { c.StagingDir = "./inbox" }, false},
		{"bad layout", func(c *Config) { c.Layout = "by-month" }, false},
		{"negative timeout", func(c *Config) { c.DataTimeout = -time.Second }, false},
		{"zero line length", func(c *Config) { c.MaxLineLength = 0 }, false},
		{"zero message size", func(c *Config) { c.MaxMessageSize = 0 }, false},
		{"zero recipients", func(c *Config) { c.MaxRecipients = 0 }, false},
		{"no hostname", func(c *Config) { c.Hostname = "" }, false},
		{"disabled timeouts", func(c *Config) { c.CommandTimeout = 0; c.SessionTimeout = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %s", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected an error")
			}
		})
	}
}
