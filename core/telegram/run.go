package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/tonbot/core/config"
	"github.com/m3rciful/tonbot/core/logger"
	"github.com/m3rciful/tonbot/core/netutil"
	tghelpers "github.com/m3rciful/tonbot/core/telegram/helpers"
	tgsender "github.com/m3rciful/tonbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// Middleware describes a global bot middleware to be registered via bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route declares a single bot handler bound to an arbitrary endpoint.
// Endpoint values are passed directly to tele.Bot.Handle.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry
	// Bot is used as is when set; otherwise RunTelegram builds one from Config.
	Bot *tele.Bot

	DispatcherOptions tgsender.Options
	Dispatcher        *tgsender.Dispatcher

	Middlewares []Middleware
	Routes      []Route

	// DisableWebhookCleanup keeps a registered webhook in long-poll mode.
	DisableWebhookCleanup   bool
	DisableHelperDispatcher bool

	OnStart Hook
	OnStop  Hook
}

// Hook is a lifecycle callback around the update loop.
type Hook func(ctx context.Context, rt Runtime) error

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// NewBot builds a bot for the configured run mode without starting it.
func NewBot(cfg *coreconfig.Config) (*tele.Bot, error) {
	if cfg == nil {
		return nil, errors.New("telegram: nil config provided")
	}
	poller := BuildPoller(PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		Webhook: WebhookOptions{
			Listen:      cfg.Webhook.Listen,
			Port:        cfg.Webhook.Port,
			URL:         cfg.Webhook.URL,
			SecretToken: cfg.Webhook.SecretToken,
			DropPending: cfg.Webhook.DropPending,
		},
	})
	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Telegram.Token,
		Poller:  poller,
		Client:  netutil.NewHTTPClient(netutil.APIOptions()),
		OnError: logBotError,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	return bot, nil
}

// logBotError receives handler errors that escaped the routers.
func logBotError(err error, c tele.Context) {
	ctx := logger.Background()
	if c != nil {
		ctx = tghelpers.BuildContext(c)
	}
	logger.Error(ctx, "tg", "update.error",
		logger.ErrAttr(err),
		slog.String("err_code", strings.ToUpper(tgsender.Classify(err))),
	)
}

// RunTelegram installs the middlewares, routes and command menu, then serves
// updates until ctx is done. OnStop runs with a context that outlives ctx.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return errors.New("telegram: nil config provided")
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}

	started := time.Now()
	bot := opts.Bot
	if bot == nil {
		var err error
		if bot, err = NewBot(opts.Config); err != nil {
			return err
		}
	}

	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = tgsender.NewDispatcher(opts.DispatcherOptions)
	}
	if !opts.DisableHelperDispatcher {
		tghelpers.SetDispatcher(dispatcher)
	}
	release := func() {
		dispatcher.Close()
		if !opts.DisableHelperDispatcher {
			tghelpers.SetDispatcher(nil)
		}
	}
	rt := Runtime{Bot: bot, Dispatcher: dispatcher, Registry: opts.Registry}

	logMode(ctx, bot, opts.Config, time.Since(started))
	if _, isWebhook := bot.Poller.(*tele.Webhook); !isWebhook && !opts.DisableWebhookCleanup {
		removeWebhook(ctx, bot, opts.Config.Webhook.DropPending)
	}
	install(bot, opts)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			release()
			return err
		}
	}

	runErr := serve(ctx, bot)

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(context.WithoutCancel(ctx), rt)
	}
	release()

	if stopErr != nil {
		return stopErr
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func install(bot *tele.Bot, opts RunOptions) {
	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, route := range opts.Routes {
		if route.Endpoint != nil && route.Handler != nil {
			bot.Handle(route.Endpoint, route.Handler)
		}
	}
	InitBotCommands(bot, opts.Registry)
}

// serve runs the poller until ctx is done or the poller stops on its own.
func serve(ctx context.Context, bot *tele.Bot) error {
	done := make(chan struct{})
	go func() {
		bot.Start()
		close(done)
	}()
	select {
	case <-ctx.Done():
		bot.Stop()
		<-done
		return ctx.Err()
	case <-done:
		return nil
	}
}

func logMode(ctx context.Context, bot *tele.Bot, cfg *coreconfig.Config, took time.Duration) {
	switch p := bot.Poller.(type) {
	case *tele.Webhook:
		publicURL := ""
		if p.Endpoint != nil {
			publicURL = p.Endpoint.PublicURL
		}
		logger.TG.LogAttrs(ctx, slog.LevelInfo, "webhook mode",
			slog.String("event", "mode"),
			slog.String("mode", "webhook"),
			slog.String("listen", p.Listen),
			slog.String("public_url", publicURL),
			slog.Bool("secret_token", p.SecretToken != ""),
			slog.Duration("duration", took),
		)
	case *tele.LongPoller:
		logger.TG.LogAttrs(ctx, slog.LevelInfo, "polling mode",
			slog.String("event", "mode"),
			slog.String("mode", cfg.Telegram.RunMode),
			slog.Int("timeout_seconds", int(p.Timeout/time.Second)),
			slog.Duration("duration", took),
		)
	default:
		logger.TG.LogAttrs(ctx, slog.LevelInfo, "custom poller",
			slog.String("event", "mode"),
			slog.String("mode", fmt.Sprintf("%T", p)),
		)
	}
}

// removeWebhook clears a webhook left by an earlier deployment; Telegram
// refuses getUpdates while one is set.
func removeWebhook(ctx context.Context, bot *tele.Bot, dropPending bool) {
	if err := bot.RemoveWebhook(dropPending); err != nil {
		logger.TG.LogAttrs(ctx, slog.LevelWarn, "failed to delete webhook",
			slog.String("event", "delete_webhook"),
			slog.String("err_code", strings.ToUpper(tgsender.Classify(err))),
			logger.ErrAttr(err),
		)
		return
	}
	logger.TG.LogAttrs(ctx, slog.LevelInfo, "webhook deleted",
		slog.String("event", "delete_webhook"),
		slog.Bool("drop_pending", dropPending),
	)
}
