// Package app wires configuration, storage, services, and flows into the
// running bot and the verification HTTP server.
package app

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/communibot/core/config"
	coredatabase "github.com/m3rciful/communibot/core/database"
	"github.com/m3rciful/communibot/core/logger"
	coretelegram "github.com/m3rciful/communibot/core/telegram"
	tgmiddleware "github.com/m3rciful/communibot/core/telegram/middleware"
	tgrouter "github.com/m3rciful/communibot/core/telegram/router"
	"github.com/m3rciful/communibot/flows/authlink"
	"github.com/m3rciful/communibot/flows/wizard"
	"github.com/m3rciful/communibot/mail"
	"github.com/m3rciful/communibot/services/communities"
	"github.com/m3rciful/communibot/services/identity"
	"github.com/m3rciful/communibot/services/ratelimit"
	"github.com/m3rciful/communibot/services/sessions"
	"github.com/m3rciful/communibot/web/verify"
)

// App holds the wired application.
type App struct {
	cfg *Config
	db  *sqlx.DB

	ids      *identity.Service
	comms    *communities.Service
	sessions sessions.Store

	msgLimiter *ratelimit.Limiter
	authFlow   *authlink.Machine
	wizardFlow *wizard.Machine

	verify *verify.Server
}

// Bootstrap initializes the logger, connects to the database, applies
// migrations, and wires every service. It must run before any other app
// method.
func Bootstrap(cfg *Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config provided")
	}

	if err := logger.InitLogger(&cfg.Config); err != nil {
		return nil, fmt.Errorf("app: logger init failed: %w", err)
	}

	// In container setups the database may come up after the bot.
	if err := coredatabase.WaitForPostgres(cfg.Database.DSN(), 30*time.Second); err != nil {
		return nil, fmt.Errorf("app: database not ready: %w", err)
	}
	db, err := coredatabase.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("app: database initialization failed: %w", err)
	}
	if err := coredatabase.RunMigrations(cfg.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("app: migrations failed: %w", err)
	}

	ids := identity.NewService(identity.NewPostgresRepository(db))
	comms := communities.NewService(communities.NewPostgresRepository(db))
	sessStore := sessions.NewPostgresStore(db)

	counters := ratelimit.NewPostgresStore(db)
	msgLimiter := ratelimit.NewLimiter(counters,
		cfg.RateLimit.Messages.Points,
		time.Duration(cfg.RateLimit.Messages.WindowSeconds)*time.Second,
	)
	linkLimiter := ratelimit.NewLimiter(counters,
		cfg.RateLimit.MagicLink.Points,
		time.Duration(cfg.RateLimit.MagicLink.WindowSeconds)*time.Second,
	)

	var sender mail.Sender
	if cfg.Mail.Host != "" {
		sender = mail.NewSMTPSender(cfg.Mail)
	} else {
		sender = mail.LogSender{}
	}
	mailer := mail.NewMagicLinkMailer(sender, mail.NewLinkBuilder(cfg.Verify.BaseURL))

	return &App{
		cfg:        cfg,
		db:         db,
		ids:        ids,
		comms:      comms,
		sessions:   sessStore,
		msgLimiter: msgLimiter,
		authFlow:   authlink.NewMachine(ids, sessStore, linkLimiter, mailer),
		wizardFlow: wizard.NewMachine(comms, sessStore),
		verify:     verify.NewServer(cfg.Verify.Listen, ids),
	}, nil
}

// TelegramRunOptions builds the bot runtime wiring: global middleware chain,
// command routes, and the session-driven text route.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := a.buildRegistry()

	middlewares := []coretelegram.Middleware{
		{Name: "recover", Use: tgmiddleware.RecoverMiddleware},
		{Name: "logger", Use: tgmiddleware.LoggerMiddleware},
		{Name: "throttle", Use: tgmiddleware.ThrottleMiddleware(a.msgLimiter)},
		{Name: "metrics", Use: tgmiddleware.MessageMetricsMiddleware},
	}

	routes := tgrouter.CommandRoutes(reg)
	routes = append(routes, tgrouter.TextRoutes(a, reg, tgrouter.TextOptions{})...)

	return coretelegram.RunOptions{
		Config:      a.CoreConfig(),
		Registry:    reg,
		Middlewares: middlewares,
		Routes:      routes,
	}, nil
}

// Verify returns the verification callback server.
func (a *App) Verify() *verify.Server {
	return a.verify
}

// CoreConfig exposes the core configuration.
func (a *App) CoreConfig() *coreconfig.Config {
	return &a.cfg.Config
}

// Close releases the database handle.
func (a *App) Close() error {
	return a.db.Close()
}
