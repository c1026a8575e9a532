package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tgbot "github.com/go-telegram/bot"

	"github.com/edgard/pollbot/internal/bot"
	"github.com/edgard/pollbot/internal/bot/handlers"
	"github.com/edgard/pollbot/internal/bot/tasks"
	"github.com/edgard/pollbot/internal/config"
	"github.com/edgard/pollbot/internal/database"
	"github.com/edgard/pollbot/internal/gemini"
	"github.com/edgard/pollbot/internal/logger"
	"github.com/edgard/pollbot/internal/poll"
	"github.com/edgard/pollbot/internal/telegram"
)

// serve initializes all components (config, logger, db, poll manager, bot,
// scheduler) and runs them until ctx is cancelled.
func serve(ctx context.Context, path string) error {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load configuration from %s: %w", path, err)
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON, "version", version)

	if err := telegram.ValidateMarkers(cfg.Poll.Markers); err != nil {
		return fmt.Errorf("invalid poll markers: %w", err)
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to connect to database %s: %w", cfg.Database.Path, err)
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, tgbot.WithMiddlewares(logger.Middleware(log)))
	if err != nil {
		return err
	}

	if cfg.Telegram.DropPendingUpdates {
		if _, err := tg.DeleteWebhook(ctx, &tgbot.DeleteWebhookParams{DropPendingUpdates: true}); err != nil {
			return fmt.Errorf("failed to drop pending updates: %w", err)
		}
		log.Info("Dropped pending updates")
	}

	cfg.Telegram.BotInfo, err = tg.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bot info: %w", err)
	}
	log.Info("Retrieved bot info", "bot_id", cfg.Telegram.BotInfo.ID, "bot_username", cfg.Telegram.BotInfo.Username)

	managerOpts := []poll.Option{
		poll.WithMarkers(cfg.Poll.Markers),
		poll.WithDefaultDuration(cfg.Poll.DefaultDurationMinutes),
		poll.WithStore(store),
		poll.WithAdmin(cfg.Telegram.AdminUserID),
	}
	if cfg.Gemini.Enabled() {
		gemClient, err := gemini.NewClient(ctx, cfg.Gemini, log)
		if err != nil {
			return fmt.Errorf("failed to initialize Gemini client: %w", err)
		}
		managerOpts = append(managerOpts,
			poll.WithCommentator(gemClient),
			poll.WithCommentaryTimeout(cfg.Gemini.Timeout),
		)
	}

	manager, err := poll.NewManager(log, telegram.NewMessenger(tg), managerOpts...)
	if err != nil {
		return fmt.Errorf("failed to create poll manager: %w", err)
	}

	hDeps := handlers.HandlerDeps{
		Logger:  log,
		Config:  cfg,
		Manager: manager,
	}
	if err := telegram.RegisterHandlers(tg, log, handlers.RegisterAllCommands(hDeps)); err != nil {
		return fmt.Errorf("failed to register Telegram handlers: %w", err)
	}

	tDeps := tasks.TaskDeps{
		Logger:  log,
		Store:   store,
		Manager: manager,
		Config:  cfg,
	}
	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		return err
	}

	app := bot.NewBot(log, manager, tg, sched)

	log.Info("Starting bot...")
	runErr := app.Run(ctx)
	log.Info("Bot run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	log.Info("Bot stopped gracefully.")
	time.Sleep(time.Second)
	return nil
}

// migrate applies the embedded migrations to the configured database.
func migrate(path string) error {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load configuration from %s: %w", path, err)
	}
	logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return err
	}
	database.CloseDB(db)
	slog.Info("Database is up to date", "path", cfg.Database.Path)
	return nil
}
