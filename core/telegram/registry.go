package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/m3rciful/tonbot/core/logger"
	"github.com/m3rciful/tonbot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

var (
	// ErrInvalidCommand rejects a command without a name, handler or description.
	ErrInvalidCommand = errors.New("invalid command")
	// ErrDuplicate rejects a second registration under the same key.
	ErrDuplicate = errors.New("already registered")
)

// Registry holds bot commands in registration order, which is also their
// menu order, plus the callback handlers keyed by their unique.
type Registry struct {
	mu               sync.RWMutex
	order            []string
	commands         map[string]commands.Command
	aliases          map[string]string
	callbacks        map[string]tele.HandlerFunc
	callbackNotFound tele.HandlerFunc
	textFallback     tele.HandlerFunc
}

// NewRegistry creates an empty Registry whose unknown-callback fallback just
// answers the button press.
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]commands.Command),
		aliases:   make(map[string]string),
		callbacks: make(map[string]tele.HandlerFunc),
		callbackNotFound: func(c tele.Context) error {
			_ = c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
			return nil
		},
	}
}

// RegisterCommand adds cmd under name ("/connect" or "connect"). Aliases
// resolve to name in LookupCommand but get no route of their own.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) error {
	key := commands.Normalize(name)
	if key == "" || key == "/" || !cmd.Valid() {
		return r.rejectCommand(name, "invalid", ErrInvalidCommand)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[key]; exists {
		return r.rejectCommand(name, "duplicate", ErrDuplicate)
	}
	if _, exists := r.aliases[key]; exists {
		return r.rejectCommand(name, "duplicate", ErrDuplicate)
	}
	r.commands[key] = cmd
	r.order = append(r.order, key)
	for _, alias := range cmd.Aliases {
		if a := commands.Normalize(alias); a != "" && a != key {
			r.aliases[a] = key
		}
	}
	return nil
}

func (r *Registry) rejectCommand(name, reason string, err error) error {
	logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, "register.command.skip",
		slog.String("name", name),
		slog.String("reason", reason),
	)
	return fmt.Errorf("command %q: %w", name, err)
}

// Names returns command keys in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Command returns the command registered under key.
func (r *Registry) Command(key string) (commands.Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[key]
	return cmd, ok
}

// ListCommands returns commands in registration order. With visibleOnly,
// hidden and operator commands are left out.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]tele.Command, 0, len(r.order))
	for _, key := range r.order {
		cmd := r.commands[key]
		if visibleOnly && !cmd.Visible() {
			continue
		}
		list = append(list, tele.Command{Text: key, Description: cmd.Description})
	}
	return list
}

// LookupCommand resolves message text, including "/cmd@bot args" forms and
// aliases, to the canonical key and its command.
func (r *Registry) LookupCommand(text string) (string, commands.Command, bool) {
	key := commands.Normalize(text)
	if key == "" {
		return "", commands.Command{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if target, ok := r.aliases[key]; ok {
		key = target
	}
	cmd, ok := r.commands[key]
	if !ok {
		return "", commands.Command{}, false
	}
	return key, cmd, true
}

// RegisterCallback adds a callback handler mapped to its unique key.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	if key == "" || handler == nil {
		logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, "register.callback.skip",
			slog.String("key", key),
			slog.Bool("handler_nil", handler == nil),
		)
		return fmt.Errorf("callback %q: %w", key, ErrInvalidCommand)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.callbacks[key]; exists {
		return fmt.Errorf("callback %q: %w", key, ErrDuplicate)
	}
	r.callbacks[key] = handler
	return nil
}

// GetCallback returns the handler for key.
func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// ListCallbacks returns sorted keys (for diagnostics).
func (r *Registry) ListCallbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.callbacks))
	for k := range r.callbacks {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// SetCallbackNotFound replaces the fallback for unknown callbacks. nil is ignored.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.callbackNotFound = h
	r.mu.Unlock()
}

func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.callbackNotFound
}

// SetTextFallback sets the handler for text that matches no command.
func (r *Registry) SetTextFallback(h tele.HandlerFunc) {
	r.mu.Lock()
	r.textFallback = h
	r.mu.Unlock()
}

func (r *Registry) TextFallback() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.textFallback
}

// MenuCommands returns the visible commands in the form SetCommands takes.
func (r *Registry) MenuCommands() []tele.Command {
	list := r.ListCommands(true)
	for i := range list {
		list[i].Text = commands.MenuText(list[i].Text)
	}
	return list
}

// InitBotCommands publishes the command menu. Failure is logged, not fatal.
func InitBotCommands(bot *tele.Bot, reg *Registry) {
	menu := reg.MenuCommands()
	if err := bot.SetCommands(menu); err != nil {
		logger.TWire.LogAttrs(context.Background(), slog.LevelError, "register.commands.set_failed",
			slog.Int("count", len(menu)),
			logger.ErrAttr(err),
		)
		return
	}
	logger.TWire.LogAttrs(context.Background(), slog.LevelInfo, "register.commands.set",
		slog.Int("count", len(menu)),
		slog.String("names", strings.Join(reg.Names(), ",")),
	)
}
