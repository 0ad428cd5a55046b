// Package cli is the interactive client shell: it wires the credential cache,
// the identity provider, and the backend client together and exposes the
// session lifecycle as REPL commands.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/dmitrijs2005/sessionkeeper/internal/claims"
	"github.com/dmitrijs2005/sessionkeeper/internal/client/config"
	"github.com/dmitrijs2005/sessionkeeper/internal/credstore"
	"github.com/dmitrijs2005/sessionkeeper/internal/httpx"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/dmitrijs2005/sessionkeeper/internal/profile"
	"github.com/dmitrijs2005/sessionkeeper/internal/provider"
	"github.com/dmitrijs2005/sessionkeeper/internal/session"

	_ "modernc.org/sqlite"
)

type App struct {
	config  *config.Config
	idp     *provider.OIDCProvider
	orch    *session.Orchestrator
	httpc   *http.Client
	log     logging.Logger
	reader  *bufio.Reader
	printer func(format string, args ...any)
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logging.NewText(os.Stderr, slog.LevelInfo)
	codec := claims.NewCodec()

	db, err := credstore.OpenDatabase(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential database: %w", err)
	}

	store := credstore.NewStore(
		codec,
		credstore.NewMemoryTier(),
		credstore.NewSQLiteTier(db, codec),
		credstore.NewCookieTier(cfg.CookiePath, cfg.CookieMaxAge, codec),
		log,
	)

	app := &App{
		config:  cfg,
		log:     log,
		reader:  bufio.NewReader(os.Stdin),
		printer: func(format string, args ...any) { fmt.Printf(format+"\n", args...) },
	}

	idp, err := provider.NewOIDC(ctx, provider.Config{
		IssuerURL:    cfg.IssuerURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Audience:     cfg.Audience,
	}, app.openURL, log)
	if err != nil {
		return nil, err
	}
	app.idp = idp

	app.orch = session.New(ctx, session.Options{
		Store:          store,
		Provider:       idp,
		Backend:        profile.NewClient(cfg.BackendBaseURL, log),
		Codec:          codec,
		Logger:         log,
		Audience:       cfg.Audience,
		LoginEntryPath: cfg.LoginEntryPath,
		FetchTimeout:   cfg.FetchTimeout,
		RenewTimeout:   cfg.RenewTimeout,
	})

	app.httpc = &http.Client{
		Transport: &httpx.BearerTransport{
			Tokens: app.orch,
			OnUnauthorized: func(ctx context.Context, path string) {
				url := app.orch.HandleUnauthorized(ctx, path)
				app.printer("Session expired. Log in again at: %s", url)
			},
			Log: log,
		},
	}

	return app, nil
}

// openURL hands the authorization URL to the user; a desktop integration
// could launch the browser instead.
func (a *App) openURL(url string) error {
	a.printer("Open the following URL in your browser, then paste the callback URL here with the 'callback' command:")
	a.printer("  %s", url)
	return nil
}

func (a *App) Run(ctx context.Context) {
	a.Root(ctx)
}
