package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("addr=%q", cfg.Server.Addr)
	}
	if cfg.Dashboard.PollInterval != 30*time.Second {
		t.Fatalf("poll_interval=%v", cfg.Dashboard.PollInterval)
	}
	if cfg.Dashboard.FetchTimeout != 10*time.Second {
		t.Fatalf("fetch_timeout=%v", cfg.Dashboard.FetchTimeout)
	}
	if cfg.Auth.Issuer != "carbex" {
		t.Fatalf("issuer=%q", cfg.Auth.Issuer)
	}
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte("server:\n  addr: \":9090\"\ndashboard:\n  poll_interval: 45s\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CARBEX_SERVER_ADDR", ":7070")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// env wins over file
	if cfg.Server.Addr != ":7070" {
		t.Fatalf("addr=%q", cfg.Server.Addr)
	}
	// file wins over default
	if cfg.Dashboard.PollInterval != 45*time.Second {
		t.Fatalf("poll_interval=%v", cfg.Dashboard.PollInterval)
	}
}

func TestLoadRejectsBadInterval(t *testing.T) {
	t.Setenv("CARBEX_DASHBOARD_POLL_INTERVAL", "10ms")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestEnvKeyMap(t *testing.T) {
	cases := map[string]string{
		"CARBEX_SERVER_ADDR":             "server.addr",
		"CARBEX_DATABASE_DSN":            "database.dsn",
		"CARBEX_DASHBOARD_POLL_INTERVAL": "dashboard.poll_interval",
	}
	for in, want := range cases {
		if got := envKeyMap(in); got != want {
			t.Fatalf("envKeyMap(%s)=%s, want %s", in, got, want)
		}
	}
}
