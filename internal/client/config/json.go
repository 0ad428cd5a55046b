package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/sessionkeeper/internal/flagx"
	"github.com/dmitrijs2005/sessionkeeper/internal/timex"
)

// JSONConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "10s"
// or as integer nanoseconds. After parsing, values are copied into the
// runtime Config.
type JSONConfig struct {
	IssuerURL    string `json:"issuer_url"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURL  string `json:"redirect_url"`
	Audience     string `json:"audience"`

	BackendBaseURL string `json:"backend_base_url"`
	LoginEntryPath string `json:"login_entry_path"`

	DatabaseDSN string `json:"database_dsn"`
	CookiePath  string `json:"cookie_path"`

	CookieMaxAge timex.Duration `json:"cookie_max_age"`
	FetchTimeout timex.Duration `json:"fetch_timeout"`
	RenewTimeout timex.Duration `json:"renew_timeout"`
}

// parseJSON overlays Config with values loaded from the JSON file named by
// the -c/-config flags. Absent flags mean no JSON is loaded. Empty JSON
// fields keep the value already present in cfg. Read or unmarshal errors
// panic (the caller is the process entry point).
func parseJSON(cfg *Config) {
	path := flagx.JSONConfigFlags()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var jc JSONConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.IssuerURL != "" {
		cfg.IssuerURL = jc.IssuerURL
	}
	if jc.ClientID != "" {
		cfg.ClientID = jc.ClientID
	}
	if jc.ClientSecret != "" {
		cfg.ClientSecret = jc.ClientSecret
	}
	if jc.RedirectURL != "" {
		cfg.RedirectURL = jc.RedirectURL
	}
	if jc.Audience != "" {
		cfg.Audience = jc.Audience
	}
	if jc.BackendBaseURL != "" {
		cfg.BackendBaseURL = jc.BackendBaseURL
	}
	if jc.LoginEntryPath != "" {
		cfg.LoginEntryPath = jc.LoginEntryPath
	}
	if jc.DatabaseDSN != "" {
		cfg.DatabaseDSN = jc.DatabaseDSN
	}
	if jc.CookiePath != "" {
		cfg.CookiePath = jc.CookiePath
	}
	if jc.CookieMaxAge.Duration != 0 {
		cfg.CookieMaxAge = jc.CookieMaxAge.Duration
	}
	if jc.FetchTimeout.Duration != 0 {
		cfg.FetchTimeout = jc.FetchTimeout.Duration
	}
	if jc.RenewTimeout.Duration != 0 {
		cfg.RenewTimeout = jc.RenewTimeout.Duration
	}
}
