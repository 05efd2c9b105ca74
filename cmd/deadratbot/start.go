package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/exelus-space/deadrat-go/internal/config"
	"github.com/exelus-space/deadrat-go/internal/logger"
	"github.com/exelus-space/deadrat-go/pkg/deadrat"
)

var (
	configFile string

	startCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the deadrat bot",
		Long:  "Connect to the DeadRat API via long polling and dispatch incoming messages until interrupted",
		Run: func(cmd *cobra.Command, args []string) {
			// .env is optional; deployments usually set the environment directly
			_ = godotenv.Load()

			cfg, err := config.Load(configFile)
			if err != nil {
				log.Fatalf("Failed to load config: %v", err)
			}

			logConfig := logger.Config{
				Level:        cfg.Logging.Level,
				File:         cfg.Logging.File,
				MaxSize:      cfg.Logging.MaxSize,
				MaxBackups:   cfg.Logging.MaxBackups,
				MaxAge:       cfg.Logging.MaxAge,
				Compress:     cfg.Logging.Compress,
				EnableStdout: cfg.Logging.EnableStdout,
			}
			if err := logger.InitLogger(logConfig); err != nil {
				log.Fatalf("Failed to initialize logger: %v", err)
			}

			logger.WithFields(logrus.Fields{
				"config_file": configFile,
				"log_level":   cfg.Logging.Level,
				"base_url":    cfg.BaseURL,
			}).Info("logger-initialized")

			bot := deadrat.NewBot(deadrat.BotConfig{
				APIKey:            cfg.APIKey,
				BaseURL:           cfg.BaseURL,
				Logger:            logger.GetLogger(),
				SyncTimeout:       cfg.Durations.Sync,
				PollTimeout:       cfg.Durations.Poll,
				ConnectionBackoff: cfg.Durations.ConnectionBackoff,
				ServerBackoff:     cfg.Durations.ServerBackoff,
				ErrorBackoff:      cfg.Durations.ErrorBackoff,
			})

			registerHandlers(bot)

			// SIGINT/SIGTERM cancel the context; the bot fires its
			// shutdown event and Run returns nil.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fmt.Println("deadratbot starting, press Ctrl+C to stop")
			if err := bot.Run(ctx); err != nil {
				log.Fatalf("Bot terminated: %v", err)
			}
			log.Println("deadratbot stopped")
		},
	}
)

// registerHandlers wires the built-in demo commands.
func registerHandlers(bot *deadrat.Bot) {
	bot.On(deadrat.EventStartup, func(err error, msg *deadrat.Message) {
		logger.Info("bot-started")
	})

	bot.On(deadrat.EventShutdown, func(err error, msg *deadrat.Message) {
		logger.Info("bot-shutting-down")
	})

	bot.On(deadrat.EventConnectionError, func(err error, msg *deadrat.Message) {
		logger.Warn("connection-lost-retrying")
	})

	bot.On(deadrat.EventError, func(err error, msg *deadrat.Message) {
		logger.WithField("error", err).Error("handler-error")
		if msg != nil {
			// Best effort: the sender gets a note about the failure.
			_, _ = msg.Reply(context.Background(), fmt.Sprintf("something went wrong: %v", err))
		}
	})

	bot.Command("/ping", func(msg *deadrat.Message) error {
		_, err := msg.Reply(context.Background(),
			fmt.Sprintf("pong, %s! (message id %s)", msg.Author.Username, msg.ID))
		return err
	})

	bot.CommandWithArgs("/echo", func(msg *deadrat.Message, args []string) error {
		if len(args) == 0 {
			_, err := msg.Reply(context.Background(), "usage: /echo <text>")
			return err
		}
		_, err := msg.Reply(context.Background(), strings.Join(args, " "))
		return err
	})

	bot.Command("/magic", func(msg *deadrat.Message) error {
		ctx := context.Background()
		sent, err := msg.Reply(ctx, "counting down from 3...")
		if err != nil {
			return err
		}
		for _, text := range []string{"counting down from 2...", "counting down from 1...", "poof!"} {
			time.Sleep(time.Second)
			if !sent.Edit(ctx, text) {
				return fmt.Errorf("failed to edit message %s", sent.ID)
			}
		}
		time.Sleep(time.Second)
		if sent.Delete(ctx) {
			logger.WithField("id", sent.ID).Info("magic-message-deleted")
		}
		return nil
	})

	bot.OnMessage(func(msg *deadrat.Message) error {
		if msg.ReplyTo != nil {
			logger.WithFields(logrus.Fields{
				"from":        msg.Author.Username,
				"in_reply_to": msg.ReplyTo.Author.Username,
			}).Info("reply-received")
			return nil
		}
		logger.WithFields(logrus.Fields{
			"from": msg.Author.Username,
			"text": msg.Text,
		}).Info("chat-message")
		return nil
	})
}

func init() {
	startCmd.Flags().StringVarP(&configFile, "config", "c", "config.yaml", "Configuration file path")
}
