package config

import (
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/credstore"
)

// Config holds runtime settings for the session-keeper client.
//
// Fields:
//   - IssuerURL/ClientID/ClientSecret/RedirectURL/Audience: OIDC registration.
//   - BackendBaseURL: base URL of the application backend (profile fetch).
//   - LoginEntryPath: path the 401 handler redirects to, with returnTo.
//   - DatabaseDSN: sqlite DSN of the persistent credential tier.
//   - CookiePath: file path of the cross-process cookie tier.
//   - CookieMaxAge / FetchTimeout / RenewTimeout: time.Duration values.
type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Audience     string

	BackendBaseURL string
	LoginEntryPath string

	DatabaseDSN string
	CookiePath  string

	CookieMaxAge time.Duration
	FetchTimeout time.Duration
	RenewTimeout time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.RedirectURL = "http://127.0.0.1:8484/callback"
	c.BackendBaseURL = "http://127.0.0.1:8080/api"
	c.LoginEntryPath = "/login"
	c.DatabaseDSN = "session.db"
	c.CookiePath = "session_cookie"
	c.CookieMaxAge = credstore.DefaultCookieMaxAge
	c.FetchTimeout = 10 * time.Second
	c.RenewTimeout = 10 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJSON(cfg)
	parseFlags(cfg)
	return cfg
}
