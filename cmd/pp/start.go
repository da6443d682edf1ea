package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avbuyanov/postpilot/internal/backend"
	"github.com/avbuyanov/postpilot/internal/bot"
	"github.com/avbuyanov/postpilot/internal/chat"
	discordadapter "github.com/avbuyanov/postpilot/internal/chat/discord"
	slackadapter "github.com/avbuyanov/postpilot/internal/chat/slack"
	tgadapter "github.com/avbuyanov/postpilot/internal/chat/telegram"
	"github.com/avbuyanov/postpilot/internal/config"
	"github.com/avbuyanov/postpilot/internal/db"
	"github.com/avbuyanov/postpilot/internal/dialogue"
	"github.com/avbuyanov/postpilot/internal/entitlement"
	"github.com/avbuyanov/postpilot/internal/health"
	"github.com/avbuyanov/postpilot/internal/store"
	"github.com/spf13/cobra"
)

func newStartCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the PostPilot daemon",
		Long:  "Connects to the configured chat platform and serves the content-plan dialogue.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "postpilot.yaml", "path to PostPilot config file")
	return cmd
}

func runStart(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.DB)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.DB.Driver, err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle OS signals for graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	adapter, gate, err := createAdapter(ctx, cfg)
	if err != nil {
		return err
	}

	gen, err := backend.NewOpenAI(backend.OpenAIOpts{
		APIKey:      cfg.Secrets.OpenAIAPIKey,
		Model:       cfg.Backend.Model,
		Temperature: cfg.Backend.Temperature,
	})
	if err != nil {
		return err
	}

	st, err := store.New(gormDB)
	if err != nil {
		return err
	}

	engine, err := dialogue.NewEngine(dialogue.EngineOpts{
		Store:       st,
		Backend:     gen,
		Gate:        gate,
		Sender:      adapter,
		MinExamples: cfg.Dialogue.MinExamples,
		PlanDays:    cfg.Dialogue.PlanDays,
		GenTimeout:  time.Duration(cfg.Backend.TimeoutSec) * time.Second,
		ChannelName: cfg.Telegram.Channel,
		ChannelURL:  cfg.Telegram.ChannelURL,
		Out:         cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	daemon, err := bot.NewDaemon(bot.DaemonOpts{
		Adapter:     adapter,
		Engine:      engine,
		IdleTimeout: time.Duration(cfg.Dialogue.IdleTimeoutMin) * time.Minute,
		EvictEvery:  cfg.Dialogue.EvictEvery,
		Out:         cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	go func() {
		err := health.Start(ctx, health.StartOpts{
			DB:       gormDB,
			Port:     cfg.Health.Port,
			Secret:   cfg.Secrets.SessionSecret,
			Sessions: engine,
			Out:      cmd.OutOrStdout(),
		})
		if err != nil {
			log.Printf("health server: %v", err)
		}
	}()

	return daemon.Run(ctx)
}

// createAdapter builds the platform adapter and entitlement checker from
// the config. The Telegram adapter connects eagerly so the membership
// checker can share its API client; Connect is idempotent, so the daemon's
// own Connect is a no-op afterwards.
func createAdapter(ctx context.Context, cfg *config.Config) (chat.Adapter, entitlement.Checker, error) {
	switch cfg.Platform {
	case "telegram":
		adapter, err := tgadapter.New(tgadapter.AdapterOpts{
			BotToken: cfg.Secrets.TelegramBotToken,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := adapter.Connect(ctx); err != nil {
			return nil, nil, err
		}
		gate, err := entitlement.NewTelegramChannel(adapter.API(), cfg.Telegram.Channel)
		if err != nil {
			return nil, nil, err
		}
		return adapter, gate, nil

	case "discord":
		adapter, err := discordadapter.New(discordadapter.AdapterOpts{
			BotToken: cfg.Secrets.DiscordBotToken,
		})
		if err != nil {
			return nil, nil, err
		}
		return adapter, entitlement.AllowAll{}, nil

	case "slack":
		adapter, err := slackadapter.New(slackadapter.AdapterOpts{
			AppToken: cfg.Secrets.SlackAppToken,
			BotToken: cfg.Secrets.SlackBotToken,
		})
		if err != nil {
			return nil, nil, err
		}
		return adapter, entitlement.AllowAll{}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported platform %q", cfg.Platform)
	}
}
