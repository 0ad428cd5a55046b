package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()

	require.Equal(t, "session.db", cfg.DatabaseDSN)
	require.Equal(t, "/login", cfg.LoginEntryPath)
	require.Equal(t, 24*time.Hour, cfg.CookieMaxAge)
	require.Equal(t, 10*time.Second, cfg.FetchTimeout)
	require.Equal(t, 10*time.Second, cfg.RenewTimeout)
}

func TestParseJSON_Overlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conf.json")
	body := `{
		"issuer_url": "https://issuer.example.com",
		"client_id": "client-1",
		"backend_base_url": "https://api.example.com",
		"fetch_timeout": "3s",
		"cookie_max_age": "1h"
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	oldArgs := os.Args
	os.Args = []string{"cli", "-c", path}
	t.Cleanup(func() { os.Args = oldArgs })

	cfg := &Config{}
	cfg.LoadDefaults()
	parseJSON(cfg)

	require.Equal(t, "https://issuer.example.com", cfg.IssuerURL)
	require.Equal(t, "client-1", cfg.ClientID)
	require.Equal(t, "https://api.example.com", cfg.BackendBaseURL)
	require.Equal(t, 3*time.Second, cfg.FetchTimeout)
	require.Equal(t, time.Hour, cfg.CookieMaxAge)
	// Untouched fields keep their defaults.
	require.Equal(t, "session.db", cfg.DatabaseDSN)
	require.Equal(t, 10*time.Second, cfg.RenewTimeout)
}

func TestParseFlags_Overlay(t *testing.T) {
	oldArgs := os.Args
	os.Args = []string{"cli", "-backend", "https://flags.example.com", "-db", "other.db"}
	t.Cleanup(func() { os.Args = oldArgs })

	cfg := &Config{}
	cfg.LoadDefaults()
	parseFlags(cfg)

	require.Equal(t, "https://flags.example.com", cfg.BackendBaseURL)
	require.Equal(t, "other.db", cfg.DatabaseDSN)
}
