package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-playground/validator/v10"
	"github.com/jessevdk/go-flags"
	"golang.org/x/sync/errgroup"
	"nuclight.org/who-update-bot/app/server"
	"nuclight.org/who-update-bot/app/storage"
	"nuclight.org/who-update-bot/app/telegram"
	"nuclight.org/who-update-bot/app/watcher"
	"nuclight.org/who-update-bot/pkg/logger"
)

var opts struct {
	TelegramAPIToken    string        `long:"telegram-api-token" env:"TELEGRAM_API_TOKEN" required:"true" description:"telegram api token"`
	TelegramAPIEndpoint string        `long:"telegram-api-endpoint" env:"TELEGRAM_API_ENDPOINT" description:"bot api endpoint format, defaults to the public api" validate:"omitempty,contains=%s"`
	TelegramTimeout     time.Duration `long:"telegram-timeout" env:"TELEGRAM_TIMEOUT" default:"3s" description:"timeout of a single bot api call" validate:"gt=0"`
	WebhookURL          string        `long:"webhook-url" env:"WEBHOOK_URL" description:"public webhook url, registered on start when set" validate:"omitempty,url"`
	Listen              string        `long:"listen" env:"LISTEN_ADDR" default:":8080" description:"http listen address" validate:"required"`
	WebhookPath         string        `long:"webhook-path" env:"WEBHOOK_PATH" default:"/webhook_tg/" description:"webhook path" validate:"startswith=/"`
	HandleTimeout       time.Duration `long:"handle-timeout" env:"HANDLE_TIMEOUT" default:"10s" description:"timeout of handling a single update" validate:"gt=0"`
	DBPath              string        `long:"db-path" env:"DB_PATH" default:"./db/whoupdate.sqlite?_busy_timeout=5000" description:"path to the sqlite database file" validate:"required"`
	StartPhoto          string        `long:"start-photo" env:"START_PHOTO" description:"file id or url of the /start photo"`
	StartText           string        `long:"start-text" env:"START_TEXT" default:"Hi! Connect me to your Telegram Business account and I will tell you when someone edits or deletes a message in your chats." description:"caption of the /start greeting" validate:"required"`
	OwnerChatID         int64         `long:"owner-chat-id" env:"OWNER_CHAT_ID" description:"chat notified about new bot users"`
	Signature           string        `long:"signature" env:"BOT_SIGNATURE" description:"username closing notifications, defaults to the bot username"`
	SentryDSN           string        `long:"sentry-dsn" env:"SENTRY_DSN" description:"sentry dsn, reporting is disabled when empty" validate:"omitempty,url"`
	SentryEnv           string        `long:"sentry-env" env:"SENTRY_ENVIRONMENT" default:"production" description:"sentry environment"`
	LogLevel            string        `long:"log-level" env:"LOG_LEVEL" default:"info" description:"log level" validate:"oneof=debug info warn warning error"`
}

var Revision = "dev"

func main() {
	_, err := flags.Parse(&opts)
	if err != nil {
		os.Exit(1)
	}

	// an unknown level is reported by the validation below
	level, _ := logger.ParseLevel(opts.LogLevel)

	log := logger.NewLogger(level)

	err = validator.New().Struct(&opts)
	if err != nil {
		log.Error("invalid options", "error", err)
		os.Exit(1)
	}

	log.Info("starting bot", "revision", Revision)

	if opts.SentryDSN != "" {
		err = sentry.Init(sentry.ClientOptions{
			Dsn:         opts.SentryDSN,
			Release:     Revision,
			Environment: opts.SentryEnv,
		})
		if err != nil {
			log.Error("initializing sentry", "error", err)
			os.Exit(1)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := storage.NewSQLite(ctx, opts.DBPath)
	if err != nil {
		log.Error("creating sqlite3 database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("closing sqlite3 database", "error", err)
		}
	}()

	tg, err := telegram.NewClient(log, opts.TelegramAPIToken, opts.TelegramAPIEndpoint, opts.TelegramTimeout)
	if err != nil {
		log.Error("creating telegram client", "error", err)
		os.Exit(1)
	}

	if opts.WebhookURL != "" {
		if err = tg.SetWebhook(opts.WebhookURL); err != nil {
			log.Error("registering webhook", "error", err)
			os.Exit(1)
		}
	}

	signature := opts.Signature
	if signature == "" {
		signature = tg.Username()
	}

	w := &watcher.Watcher{
		Log:         log,
		Messages:    db,
		Users:       db,
		Connections: &telegram.Resolver{Log: log, Lookup: tg},
		Sender:      tg,
		Greeting: watcher.Greeting{
			Photo:   opts.StartPhoto,
			Caption: opts.StartText,
		},
		OwnerChatID: opts.OwnerChatID,
		Signature:   signature,
	}

	srv := &server.Server{
		Log:     log,
		Handler: w,
		Path:    opts.WebhookPath,
		Timeout: opts.HandleTimeout,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gCtx, opts.Listen)
	})

	err = g.Wait()
	if err != nil {
		log.Error("running server", "error", err)
		cancel()
		os.Exit(1)
	}

	log.Info("bot stopped")
}
