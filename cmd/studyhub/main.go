package main

import (
	"context"
	"database/sql"
	"embed"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/django/v3"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	mflash "github.com/goliatone/go-router/middleware/flash"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/studyolle/go-account"
	"github.com/studyolle/go-account/cmd/studyhub/config"
	"github.com/studyolle/go-account/middleware/csrf"
	"github.com/studyolle/go-account/notifier/kafka"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

//go:embed views
var embeddedViews embed.FS

type App struct {
	config    *config.BaseConfig
	bunDB     *bun.DB
	repo      account.RepositoryManager
	lifecycle *account.LifecycleManager
	sessions  *account.SessionAuthenticator
	notifier  account.Notifier
	activity  []account.ActivitySink
	closers   []func() error
	srv       router.Server[*fiber.App]
	logger    *glog.BaseLogger
}

func (a *App) Config() *config.BaseConfig {
	return a.config
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.GetLogger("app").Warn("close failed", "error", err)
		}
	}
}

func main() {
	configPath := flag.String("config", os.Getenv("STUDYHUB_CONFIG"), "path to a JSON config file")
	envPath := flag.String("env", ".env", "path to a dotenv file, skipped when missing")
	flag.Parse()

	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Trace),
		glog.WithName("studyhub"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)

	if err := config.LoadDotEnv(*envPath); err != nil {
		lgr.GetLogger("config").Error("unable to load env file", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		lgr.GetLogger("config").Error("unable to load configuration", "error", err)
		os.Exit(1)
	}

	if cfg.App.Debug {
		fmt.Println("============")
		fmt.Println(print.MaybeHighlightJSON(cfg))
		fmt.Println("============")
	}

	app := &App{
		config: cfg,
		logger: lgr,
	}
	defer app.Close()

	ctx := context.Background()

	if err := WithPersistence(ctx, app); err != nil {
		panic(err)
	}

	if err := WithNotifier(ctx, app); err != nil {
		panic(err)
	}

	if err := WithHTTPServer(ctx, app); err != nil {
		panic(err)
	}

	if err := WithAccounts(ctx, app); err != nil {
		panic(err)
	}

	go func() {
		if err := app.srv.Serve(cfg.HTTP.Addr); err != nil {
			app.GetLogger("http").Error("server stopped", "error", err)
		}
	}()

	sig := WaitExitSignal()
	app.GetLogger("app").Info("shutting down", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.GetShutdownTimeout())
	defer cancel()

	if err := app.srv.Shutdown(shutdownCtx); err != nil {
		app.GetLogger("http").Error("shutdown failed", "error", err)
	}
}

func WithPersistence(ctx context.Context, app *App) error {
	pcfg := app.Config().Persistence

	var (
		sqldb *sql.DB
		db    *bun.DB
		err   error
	)

	switch pcfg.Driver {
	case "postgres", "pgx":
		sqldb, err = sql.Open("pgx", pcfg.DSN)
		if err != nil {
			return err
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		sqldb, err = sql.Open(sqliteshim.ShimName, pcfg.DSN)
		if err != nil {
			return err
		}
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	}

	if pcfg.Debug {
		db.AddQueryHook(queryLogger{logger: app.GetLogger("persistence")})
	}

	if err := account.RunMigrations(ctx, sqldb, pcfg.Driver); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to run migrations").
			WithMetadata(map[string]any{"driver": pcfg.Driver})
	}

	repo := account.NewRepositoryManager(db)
	if err := repo.Validate(); err != nil {
		return err
	}

	app.bunDB = db
	app.repo = repo
	app.closers = append(app.closers, db.Close)

	return nil
}

func WithNotifier(_ context.Context, app *App) error {
	ncfg := app.Config().Notifier

	switch ncfg.Kind {
	case "kafka":
		n, err := kafka.New(kafka.Config{
			Brokers:      ncfg.Kafka.Brokers,
			Topic:        ncfg.Kafka.Topic,
			Username:     ncfg.Kafka.Username,
			Password:     ncfg.Kafka.Password,
			TLS:          ncfg.Kafka.TLS,
			WriteTimeout: ncfg.Kafka.GetWriteTimeout(),
		})
		if err != nil {
			return err
		}
		app.notifier = n
		app.closers = append(app.closers, n.Close)
	default:
		app.notifier = account.LogNotifier{
			Logger: app.GetLogger("notifier"),
			Pretty: ncfg.Pretty,
		}
	}

	app.activity = append(app.activity, account.LogActivitySink(app.GetLogger("account:activity")))

	if ncfg.Kind == "kafka" && ncfg.Kafka.ActivityTopic != "" {
		sink, err := kafka.NewActivitySink(kafka.Config{
			Brokers:      ncfg.Kafka.Brokers,
			Topic:        ncfg.Kafka.ActivityTopic,
			Username:     ncfg.Kafka.Username,
			Password:     ncfg.Kafka.Password,
			TLS:          ncfg.Kafka.TLS,
			WriteTimeout: ncfg.Kafka.GetWriteTimeout(),
		})
		if err != nil {
			return err
		}
		app.activity = append(app.activity, sink)
		app.closers = append(app.closers, sink.Close)
	}

	return nil
}

func WithHTTPServer(_ context.Context, app *App) error {
	vcfg := app.Config().Views

	var engine *django.Engine
	if _, err := os.Stat(vcfg.Dir); err == nil {
		// templates on disk override the embedded ones during development
		engine = django.New(vcfg.Dir, vcfg.Extension)
	} else {
		views, err := fs.Sub(embeddedViews, "views")
		if err != nil {
			return err
		}
		engine = django.NewFileSystem(http.FS(views), vcfg.Extension)
	}
	engine.Reload(vcfg.Reload)

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:      true,
			EnablePrintRoutes: app.Config().App.Debug,
			StrictRouting:     false,
			PassLocalsToViews: true,
			Views:             engine,
		}))
	})

	srv.Router().WithLogger(app.GetLogger("router"))
	srv.Router().Use(mflash.New(mflash.ConfigDefault))
	srv.Router().Use(csrf.New(csrf.Config{
		SecureKey:    []byte(app.Config().Auth.SigningKey),
		CookieSecure: app.Config().Auth.CookieSecure,
		Expiration:   app.Config().GetCSRFExpiration(),
		ErrorHandler: func(c router.Context, err error) error {
			app.GetLogger("csrf").Warn("form rejected", "path", c.Path(), "error", err)
			return c.Status(http.StatusForbidden).Render("errors/500", router.ViewContext{
				"error": "The form expired, please go back and try again",
				"code":  "CSRF_REJECTED",
			})
		},
	}))

	app.srv = srv

	return nil
}

func WithAccounts(_ context.Context, app *App) error {
	cfg := app.Config()

	tokens := account.NewTokenServiceFromConfig(cfg, app.GetLogger("account:tokens"))

	sessions := account.NewSessionAuthenticator(tokens, cfg, account.DefaultRoutePolicy()).
		WithLogger(app.GetLogger("account:http"))

	lifecycle := account.NewLifecycleManager(app.repo,
		account.WithHost(cfg.App.Host),
		account.WithEmailTokenTTL(cfg.GetEmailTokenTTL()),
		account.WithResendCooldown(cfg.GetResendCooldown()),
		account.WithNotifier(app.notifier),
		account.WithSessionIssuer(tokens),
		account.WithActivitySink(account.MultiActivitySink(app.activity...)),
		account.WithLifecycleLogger(app.GetLogger("account:lifecycle")),
	)

	app.sessions = sessions
	app.lifecycle = lifecycle

	r := app.srv.Router()
	r.Use(sessions.ProtectedRoute())

	optional := sessions.OptionalSession()

	r.Get("/", optional(func(ctx router.Context) error {
		return ctx.Render("index", account.TemplateHelpersWithRouter(ctx, cfg.GetContextKey()))
	})).SetName("home.get")

	r.Get(cfg.GetLoginRoute(), func(ctx router.Context) error {
		return ctx.Render("login", account.TemplateHelpersWithRouter(ctx, cfg.GetContextKey()))
	}).SetName("login.get")

	account.RegisterAccountRoutes(r, func(ac *account.AccountController) *account.AccountController {
		ac.Debug = cfg.App.Debug
		ac.Lifecycle = lifecycle
		ac.Sessions = sessions
		ac.UseHashid = cfg.Account.UseHashid
		ac.ErrorHandler = sessions.ErrorHandler
		ac.WithLogger(app.GetLogger("account:ctrl"))
		return ac
	})

	return nil
}

type queryLogger struct {
	logger glog.Logger
}

func (q queryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (q queryLogger) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	args := []any{
		"query", event.Query,
		"duration", time.Since(event.StartTime).String(),
	}
	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) {
		q.logger.Error("query failed", append(args, "error", event.Err)...)
		return
	}
	q.logger.Debug("query", args...)
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
