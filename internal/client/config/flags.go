package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/sessionkeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-issuer string     OIDC issuer URL
//	-client string     OIDC client id
//	-backend string    backend base URL
//	-db string         sqlite DSN of the persistent tier
//	-cookie string     path of the cookie file
//
// The function filters os.Args to only the flags it knows about, using
// flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-issuer", "-client", "-backend", "-db", "-cookie"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.IssuerURL, "issuer", cfg.IssuerURL, "OIDC issuer URL")
	fs.StringVar(&cfg.ClientID, "client", cfg.ClientID, "OIDC client id")
	fs.StringVar(&cfg.BackendBaseURL, "backend", cfg.BackendBaseURL, "backend base URL")
	fs.StringVar(&cfg.DatabaseDSN, "db", cfg.DatabaseDSN, "sqlite DSN of the persistent credential tier")
	fs.StringVar(&cfg.CookiePath, "cookie", cfg.CookiePath, "path of the cross-process cookie file")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
