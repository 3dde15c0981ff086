package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	_ "github.com/mattn/go-sqlite3"

	"github.com/maaaruch/tg-lucky-bot/internal/app"
	"github.com/maaaruch/tg-lucky-bot/internal/config"
	"github.com/maaaruch/tg-lucky-bot/internal/lottery"
	"github.com/maaaruch/tg-lucky-bot/internal/scheduler"
	"github.com/maaaruch/tg-lucky-bot/internal/server"
	"github.com/maaaruch/tg-lucky-bot/internal/storage"
)

func main() {
	defer logger.Init("luckybot", true, false, io.Discard).Close()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if !cfg.Telegram.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledger, closeLedger, err := openLedger(ctx, cfg.Storage)
	if err != nil {
		logger.Fatalf("storage: %v", err)
	}
	defer closeLedger()

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatalf("create bot: %v", err)
	}
	bot.Debug = cfg.Telegram.Debug
	logger.Infof("bot started as @%s", bot.Self.UserName)

	game := lottery.NewService(ledger, cfg.Game.Location)
	application := app.New(bot, game, app.Options{
		AllowedChats:   cfg.Game.AllowedChats,
		Scope:          cfg.Game.Scope,
		VideoPath:      cfg.Game.VideoPath,
		ScheduleChatID: cfg.Schedule.ChatID,
		ScheduleScope:  cfg.Schedule.Scope,
	})
	if err := application.RegisterCommands(); err != nil {
		logger.Warningf("set commands: %v", err)
	}

	var router *gin.Engine
	if cfg.Telegram.WebhookURL != "" {
		hook, err := tgbotapi.NewWebhook(cfg.Telegram.WebhookURL + server.WebhookPath(cfg.Telegram.Token))
		if err != nil {
			logger.Fatalf("webhook url: %v", err)
		}
		if _, err := bot.Request(hook); err != nil {
			logger.Fatalf("set webhook: %v", err)
		}
		logger.Info("receiving updates via webhook")
		router = server.NewRouter(cfg.Telegram.Token, application)
	} else {
		if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			logger.Warningf("delete webhook: %v", err)
		}
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := bot.GetUpdatesChan(u)
		go func() {
			<-ctx.Done()
			bot.StopReceivingUpdates()
		}()
		go application.Run(ctx, updates)
		logger.Info("receiving updates via long polling")
		router = server.NewRouter(cfg.Telegram.Token, nil)
	}

	if cfg.Schedule.Enabled() {
		daily := &scheduler.Daily{
			Hour:     cfg.Schedule.Hour,
			Minute:   cfg.Schedule.Minute,
			Location: cfg.Game.Location,
			Job:      application.ScheduledDraw,
		}
		go daily.Run(ctx)
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("http server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server forced to shutdown: %v", err)
	}
}

// openLedger connects the configured backend. The returned func releases it.
func openLedger(ctx context.Context, cfg config.StorageConfig) (lottery.Ledger, func(), error) {
	switch cfg.Driver {
	case config.DriverMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		client, err := storage.Connect(connectCtx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		release := func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Disconnect(disconnectCtx); err != nil {
				logger.Warningf("mongo disconnect: %v", err)
			}
		}
		return storage.NewMongo(client), release, nil

	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.DBPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create db dir: %w", err)
			}
		}

		db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=on&_busy_timeout=5000")
		if err != nil {
			return nil, nil, fmt.Errorf("open db: %w", err)
		}
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)

		store := storage.New(db)
		if err := store.InitSchema(); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("init schema: %w", err)
		}
		return store, func() { db.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}
