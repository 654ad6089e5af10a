package telegram

import (
	"net"
	"strconv"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/tonbot/core/config"

	tele "gopkg.in/telebot.v4"
)

// botUpdates are the update kinds the bot routes; Telegram drops the rest
// server side.
var botUpdates = []string{"message", "callback_query"}

const defaultLongPollTimeout = 10 * time.Second

// WebhookOptions declares webhook listener settings.
type WebhookOptions struct {
	Listen      string
	Port        int
	URL         string
	SecretToken string
	DropPending bool
}

// PollerOptions configures BuildPoller.
type PollerOptions struct {
	RunMode                string
	LongPollTimeoutSeconds int
	Webhook                WebhookOptions
	// AllowedUpdates overrides botUpdates when set.
	AllowedUpdates []string
}

// BuildPoller returns a webhook poller in webhook mode and a long poller
// otherwise. Both subscribe only to the update kinds the bot handles.
func BuildPoller(opts PollerOptions) tele.Poller {
	allowed := opts.AllowedUpdates
	if len(allowed) == 0 {
		allowed = botUpdates
	}

	if strings.EqualFold(strings.TrimSpace(opts.RunMode), coreconfig.RunModeWebhook) {
		wh := opts.Webhook
		return &tele.Webhook{
			Listen:         net.JoinHostPort(wh.Listen, strconv.Itoa(wh.Port)),
			SecretToken:    wh.SecretToken,
			DropUpdates:    wh.DropPending,
			AllowedUpdates: allowed,
			Endpoint:       &tele.WebhookEndpoint{PublicURL: wh.URL},
		}
	}

	timeout := defaultLongPollTimeout
	if opts.LongPollTimeoutSeconds > 0 {
		timeout = time.Duration(opts.LongPollTimeoutSeconds) * time.Second
	}
	return &tele.LongPoller{Timeout: timeout, AllowedUpdates: allowed}
}
