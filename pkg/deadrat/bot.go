// Package deadrat is a client library for the DeadRat chat-bot API.
//
// A Bot connects to the remote endpoint with repeated long-polling HTTP
// requests, parses each raw update into a Message, and routes it to
// exactly one of: a registered exact-match command handler, or the
// ordered catch-all handlers. The loop also fires a small set of
// lifecycle events (startup, shutdown, connection_error, error).
//
// # Usage
//
//	bot := deadrat.NewBot(deadrat.BotConfig{APIKey: apiKey})
//
//	bot.Command("/ping", func(msg *deadrat.Message) error {
//	    _, err := msg.Reply(context.Background(), "pong")
//	    return err
//	})
//
//	bot.OnMessage(func(msg *deadrat.Message) error {
//	    log.Printf("[%s] %s", msg.Author.Username, msg.Text)
//	    return nil
//	})
//
//	if err := bot.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Run blocks until the context is cancelled (clean shutdown, fires the
// shutdown event) or the server rejects the API key (returns
// ErrInvalidAPIKey without firing shutdown).
//
// # Concurrency
//
// The loop is strictly sequential: messages within a poll are processed
// in server order, one handler at a time, and the update cursor is only
// touched by the loop goroutine. Handler failures are isolated per
// message and reported through the error event; they never abort the
// loop.
package deadrat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/exelus-space/deadrat-go/pkg/constants"
)

// transport is the slice of the API client the dispatch loop and the
// message reply helpers depend on.
type transport interface {
	FetchUpdates(ctx context.Context, afterTS float64, timeout time.Duration) ([]Update, error)
	SendMessage(ctx context.Context, text, imageURL, replyTo string) (*SentMessage, error)
	UploadFile(ctx context.Context, filePath string) (string, error)
}

// BotConfig configures a Bot. Only APIKey is required; zero durations
// fall back to the package defaults.
type BotConfig struct {
	APIKey  string
	BaseURL string

	// Logger is the explicitly owned logger the bot writes to.
	// Defaults to logrus.StandardLogger().
	Logger *logrus.Logger

	SyncTimeout       time.Duration // initial cursor sync request
	PollTimeout       time.Duration // long poll request
	ConnectionBackoff time.Duration // sleep after a connection failure
	ServerBackoff     time.Duration // sleep after a non-auth server error
	ErrorBackoff      time.Duration // sleep after an unexpected loop error
}

func (cfg *BotConfig) applyDefaults() {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.SyncTimeout == 0 {
		cfg.SyncTimeout = constants.DefaultSyncTimeout
	}
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = constants.DefaultPollTimeout
	}
	if cfg.ConnectionBackoff == 0 {
		cfg.ConnectionBackoff = constants.DefaultConnectionBackoff
	}
	if cfg.ServerBackoff == 0 {
		cfg.ServerBackoff = constants.DefaultServerBackoff
	}
	if cfg.ErrorBackoff == 0 {
		cfg.ErrorBackoff = constants.DefaultErrorBackoff
	}
}

// Bot owns the update cursor and runs the poll/parse/route cycle.
// Registration methods are promoted from the embedded Registry.
type Bot struct {
	*Registry

	api transport
	cfg BotConfig
	log *logrus.Logger

	// lastTS is the watermark below which updates are already
	// processed. Owned exclusively by the Run goroutine.
	lastTS float64
}

// NewBot creates a bot for the given configuration.
func NewBot(cfg BotConfig) *Bot {
	cfg.applyDefaults()
	return &Bot{
		Registry: newRegistry(cfg.Logger),
		api:      NewClient(cfg.APIKey, cfg.BaseURL, cfg.Logger),
		cfg:      cfg,
		log:      cfg.Logger,
	}
}

// Run starts the bot and blocks until ctx is cancelled or the server
// rejects the API key. Cancellation fires the shutdown event and
// returns nil; auth failure returns ErrInvalidAPIKey without firing
// shutdown.
func (b *Bot) Run(ctx context.Context) error {
	b.log.WithFields(logrus.Fields{
		"api_key": maskKey(b.cfg.APIKey),
	}).Info("connecting-to-deadrat-api")

	b.sync(ctx)
	b.fire(EventStartup, nil, nil)

	b.log.Info("listening-for-updates")

	for {
		if ctx.Err() != nil {
			return b.shutdown()
		}

		updates, err := b.api.FetchUpdates(ctx, b.lastTS, b.cfg.PollTimeout)
		switch {
		case err == nil:
			b.dispatchBatch(ctx, updates)

		case errors.Is(err, ErrPollTimeout):
			// Idle long poll, go straight back.

		case errors.Is(err, context.Canceled):
			return b.shutdown()

		case errors.Is(err, ErrInvalidAPIKey):
			// Fatal. Deliberately skips the shutdown event: only
			// cooperative cancellation fires it.
			b.log.Error("invalid-api-key")
			return err

		case errors.Is(err, ErrConnection):
			b.log.WithField("error", err).Error("connection-lost")
			b.fire(EventConnectionError, nil, nil)
			if !b.backoff(ctx, b.cfg.ConnectionBackoff) {
				return b.shutdown()
			}

		default:
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				b.log.WithField("status", statusErr.Code).Warn("server-error")
				if !b.backoff(ctx, b.cfg.ServerBackoff) {
					return b.shutdown()
				}
				continue
			}
			b.log.WithField("error", err).Error("loop-error")
			b.fire(EventError, err, nil)
			if !b.backoff(ctx, b.cfg.ErrorBackoff) {
				return b.shutdown()
			}
		}
	}
}

// sync performs the one-shot initial fetch that seeds the cursor. A
// non-empty result positions the cursor just past the newest message so
// nothing is re-delivered; anything else falls back to the wall clock.
// Sync failures never prevent the transition to listening.
func (b *Bot) sync(ctx context.Context) {
	updates, err := b.api.FetchUpdates(ctx, 0, b.cfg.SyncTimeout)
	if err == nil && len(updates) > 0 {
		b.lastTS = updates[len(updates)-1].Timestamp + constants.CursorEpsilon
		b.log.WithField("last_ts", b.lastTS).Info("cursor-synced")
		return
	}
	if err != nil {
		b.log.WithField("error", err).Warn("initial-sync-failed-using-wall-clock")
	}
	b.lastTS = float64(time.Now().UnixNano()) / float64(time.Second)
}

// dispatchBatch routes one poll's worth of updates in server order. The
// cursor is advanced before each dispatch so a failing handler does not
// cause redelivery on the next poll.
func (b *Bot) dispatchBatch(ctx context.Context, updates []Update) {
	for _, u := range updates {
		b.lastTS = u.Timestamp
		msg := newMessage(u, b)

		b.log.WithFields(logrus.Fields{
			"from": msg.Author.Username,
			"text": msg.Text,
		}).Info("message-received")

		entry, matched := b.lookup(msg.Command)
		if matched {
			if err := invokeCommand(entry, msg); err != nil {
				b.log.WithFields(logrus.Fields{
					"command": msg.Command,
					"error":   err,
				}).Error("command-handler-failed")
				b.fire(EventError, err, msg)
			}
			// Catch-alls never run once a command matched, even if
			// the command handler failed.
			continue
		}

		for _, fn := range b.catchAll {
			if err := invokeMessage(fn, msg); err != nil {
				b.log.WithField("error", err).Error("message-handler-failed")
				b.fire(EventError, err, msg)
			}
		}
	}
}

// invokeCommand calls a command handler per its declared arity,
// converting panics into errors so one message cannot kill the loop.
func invokeCommand(entry commandEntry, msg *Message) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	if entry.arity == MessageAndArgs {
		return entry.cmdFn(msg, msg.Args)
	}
	return entry.msgFn(msg)
}

func invokeMessage(fn MessageFunc, msg *Message) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return fn(msg)
}

// backoff sleeps for d unless the context ends first. Returns false on
// cancellation.
func (b *Bot) backoff(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (b *Bot) shutdown() error {
	b.log.Info("stopping-bot")
	b.fire(EventShutdown, nil, nil)
	return nil
}
