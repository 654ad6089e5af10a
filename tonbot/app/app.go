// Package app wires the wallet bot: storage, TON Connect, the chat session
// registry, the handlers and the Telegram runtime.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/tonbot/core/bootstrap"
	coreconfig "github.com/m3rciful/tonbot/core/config"
	"github.com/m3rciful/tonbot/core/logger"
	"github.com/m3rciful/tonbot/core/metrics"
	"github.com/m3rciful/tonbot/core/netutil"
	tg "github.com/m3rciful/tonbot/core/telegram"
	tghelpers "github.com/m3rciful/tonbot/core/telegram/helpers"
	"github.com/m3rciful/tonbot/core/telegram/router"
	tgsender "github.com/m3rciful/tonbot/core/telegram/sender"
	"github.com/m3rciful/tonbot/core/telegram/state"
	"github.com/m3rciful/tonbot/core/telegram/ui"
	"github.com/m3rciful/tonbot/tonbot/address"
	"github.com/m3rciful/tonbot/tonbot/flow"
	"github.com/m3rciful/tonbot/tonbot/handlers"
	"github.com/m3rciful/tonbot/tonbot/session"
	"github.com/m3rciful/tonbot/tonbot/store"
	"github.com/m3rciful/tonbot/tonbot/tonconnect"
)

const msgRateLimited = "Too many requests, please slow down"

// App holds the running bot's components.
type App struct {
	cfg   *coreconfig.Config
	infra *bootstrap.Result

	metrics   *metrics.Registry
	sessions  *state.Store[*session.ChatSession]
	registry  *session.Registry
	directory *tonconnect.Directory
	service   *handlers.Service

	bot      *tele.Bot
	commands *tg.Registry
	binding  *handlers.Bot
}

// Options lets tests replace the network-facing parts.
type Options struct {
	Bootstrap bootstrap.Options
	// Bot skips building a bot from the config.
	Bot *tele.Bot
	// Messenger replaces the telebot messenger.
	Messenger handlers.Messenger
}

// New bootstraps the infrastructure and wires the bot.
func New(ctx context.Context, cfg *coreconfig.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config provided")
	}
	bopts := opts.Bootstrap
	bopts.Config = cfg
	infra, err := bootstrap.Run(ctx, bopts)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, infra: infra, metrics: metrics.New()}

	bot := opts.Bot
	if bot == nil {
		if bot, err = tg.NewBot(cfg); err != nil {
			_ = infra.Close()
			return nil, fmt.Errorf("app: telegram bot: %w", err)
		}
	}
	a.bot = bot

	a.directory = tonconnect.NewDirectory(
		cfg.TonConnect.WalletsListURL,
		seconds(cfg.TonConnect.WalletsCacheTTLSeconds),
		netutil.NewHTTPClient(netutil.APIOptions()),
	)
	a.sessions = state.NewStore[*session.ChatSession]()
	a.registry = session.NewRegistry(a.sessions, a.connectorFactory())

	msgr := opts.Messenger
	if msgr == nil {
		msgr = handlers.NewTelebotMessenger(bot)
	}
	a.service = handlers.New(handlers.Options{
		Registry:  a.registry,
		Messenger: msgr,
		Wallets:   a.directory,
		Machine: flow.Machine{
			Rules: address.Rules{
				Length:   cfg.TonConnect.AddressLength,
				Prefixes: cfg.TonConnect.AddressPrefixes,
			},
			ZeroAddress: cfg.TonConnect.ZeroAddress,
			TTL:         seconds(cfg.Conversation.FlowTTLSeconds),
		},
		TxTimeout:  time.Duration(cfg.TonConnect.TxTimeoutMS) * time.Millisecond,
		BotLink:    cfg.TonConnect.BotLink,
		SessionTTL: seconds(cfg.Conversation.SessionTTLSeconds),
		Metrics:    a.metrics,
	})

	a.commands = tg.NewRegistry()
	a.binding = handlers.NewBot(a.service, a.commands)
	if err := a.binding.Register(); err != nil {
		_ = infra.Close()
		return nil, fmt.Errorf("app: register handlers: %w", err)
	}

	logger.Info(ctx, "app", "wired",
		slog.String("storage", cfg.Storage.Driver),
		slog.Int("commands", len(a.commands.Names())),
		slog.Int("callbacks", len(a.commands.ListCallbacks())),
	)
	return a, nil
}

// connectorFactory builds one bridge connector per chat, persisting its
// session in the configured storage.
func (a *App) connectorFactory() session.ConnectorFactory {
	apiClient := netutil.NewHTTPClient(netutil.APIOptions())
	streamClient := netutil.NewHTTPClient(netutil.StreamOptions())

	var storage tonconnect.ChatStorage = tonconnect.NewMemoryStore()
	if a.infra.DB != nil {
		storage = store.New(a.infra.DB)
	}
	return func(chatID int64) tonconnect.Connector {
		st := storage.ForChat(chatID)
		return tonconnect.NewBridgeConnector(tonconnect.BridgeOptions{
			ManifestURL:  a.cfg.TonConnect.ManifestURL,
			Storage:      st,
			HTTPClient:   apiClient,
			StreamClient: streamClient,
			Log:          logger.TON.With("chat_id", chatID),
		})
	}
}

// Service exposes the command handlers.
func (a *App) Service() *handlers.Service { return a.service }

// Commands exposes the command and callback registry.
func (a *App) Commands() *tg.Registry { return a.commands }

// Metrics exposes the Prometheus registry.
func (a *App) Metrics() *metrics.Registry { return a.metrics }

// TelegramRunOptions implements the runner's TelegramApp.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	var fallbacks ui.FallbackProvider = a.binding

	routes := router.CommandRoutes(a.commands, router.CommandRouteOptions{
		AdminID:       a.cfg.Telegram.AdminID,
		OnAdminReject: handlers.OnAdminReject,
	})
	routes = append(routes, router.CallbackRoute(a.commands, router.CallbackOptions{
		NotFound: fallbacks.UnknownCallback(),
	}))
	routes = append(routes, router.TextRoutes(a.binding, a.commands, router.TextOptions{
		Fallbacks: fallbacks,
	})...)

	return tg.RunOptions{
		Config:   a.cfg,
		Registry: a.commands,
		Bot:      a.bot,
		DispatcherOptions: tgsender.Options{
			MaxRetries: 2,
			Observe:    a.metrics.IncTelegramCall,
		},
		Middlewares: tg.DefaultMiddlewares(a.cfg, onLimited,
			tg.Middleware{Name: "touch", Use: state.Touch(a.sessions)},
		),
		Routes: routes,
		OnStop: func(ctx context.Context, _ tg.Runtime) error {
			a.shutdownSessions(ctx)
			return nil
		},
	}, nil
}

func onLimited(c tele.Context) error {
	return tghelpers.Reply(c, msgRateLimited, tghelpers.Quiet())
}

// Background runs the metrics listener and the session sweeper until ctx is
// done.
func (a *App) Background(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return metrics.Serve(gctx, a.cfg.Metrics.Listen, a.metrics)
	})
	g.Go(func() error {
		return a.service.RunSweeper(gctx, seconds(a.cfg.Conversation.SweepIntervalSeconds))
	})
	return g.Wait()
}

// shutdownSessions pauses every chat's bridge listener. Persisted sessions
// stay in storage and are restored on the next start.
func (a *App) shutdownSessions(ctx context.Context) {
	var ids []int64
	a.sessions.Range(func(chatID int64, _ *session.ChatSession) bool {
		ids = append(ids, chatID)
		return true
	})
	for _, id := range ids {
		a.registry.Remove(id)
	}
	logger.Info(ctx, "app", "sessions.closed", slog.Int("count", len(ids)))
}

// Close releases the database.
func (a *App) Close() error {
	return a.infra.Close()
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
