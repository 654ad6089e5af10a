package tonconnect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/tonbot/core/logger"
)

// builtinWallets is served when the public list cannot be fetched.
var builtinWallets = []WalletInfo{
	{
		AppName:       "telegram-wallet",
		Name:          "Wallet",
		UniversalLink: "https://t.me/wallet?attach=wallet",
		BridgeURL:     "https://walletbot.me/tonconnect-bridge/bridge",
		Platforms:     []string{"ios", "android", "macos", "windows", "linux"},
	},
	{
		AppName:       "tonkeeper",
		Name:          "Tonkeeper",
		UniversalLink: "https://app.tonkeeper.com/ton-connect",
		BridgeURL:     "https://bridge.tonapi.io/bridge",
		Platforms:     []string{"ios", "android", "chrome", "firefox", "macos"},
	},
	{
		AppName:       "mytonwallet",
		Name:          "MyTonWallet",
		UniversalLink: "https://connect.mytonwallet.org",
		BridgeURL:     "https://tonconnectbridge.mytonwallet.org/bridge/",
		Platforms:     []string{"chrome", "windows", "macos", "linux", "ios", "android"},
	},
	{
		AppName:       "tonhub",
		Name:          "Tonhub",
		UniversalLink: "https://tonhub.com/ton-connect",
		BridgeURL:     "https://connect.tonhubapi.com/tonconnect",
		Platforms:     []string{"ios", "android"},
	},
}

// rawWallet mirrors one entry of wallets-v2.json.
type rawWallet struct {
	AppName      string   `json:"app_name"`
	Name         string   `json:"name"`
	Image        string   `json:"image"`
	AboutURL     string   `json:"about_url"`
	UniversalURL string   `json:"universal_url"`
	Platforms    []string `json:"platforms"`
	Bridge       []struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"bridge"`
}

// Directory serves the list of wallets that can be connected over an HTTP
// bridge, refreshing it from the public list at most once per TTL.
type Directory struct {
	url    string
	ttl    time.Duration
	client *http.Client
	now    func() time.Time

	mu        sync.Mutex
	wallets   []WalletInfo
	fetchedAt time.Time
}

// NewDirectory returns a directory backed by listURL. An empty listURL
// serves the built-in list only.
func NewDirectory(listURL string, ttl time.Duration, client *http.Client) *Directory {
	if client == nil {
		client = http.DefaultClient
	}
	return &Directory{url: strings.TrimSpace(listURL), ttl: ttl, client: client, now: time.Now}
}

// Wallets returns wallets that expose an HTTP bridge.
func (d *Directory) Wallets(ctx context.Context) ([]WalletInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.wallets != nil && d.now().Sub(d.fetchedAt) < d.ttl {
		if logger.ShouldSampleDebug("wallets.cache_hit") {
			logger.Debug(ctx, "ton", "wallets.list", slog.String("cache", "hit"), slog.Int("count", len(d.wallets)))
		}
		return cloneWallets(d.wallets), nil
	}
	if d.url == "" {
		d.wallets, d.fetchedAt = cloneWallets(builtinWallets), d.now()
		return cloneWallets(d.wallets), nil
	}

	start := time.Now()
	fetched, err := d.fetch(ctx)
	if err != nil {
		cache := "fallback"
		if d.wallets == nil {
			d.wallets = cloneWallets(builtinWallets)
		} else {
			cache = "hit"
		}
		// Retry on the next call rather than on every call.
		d.fetchedAt = d.now().Add(-d.ttl / 2)
		logger.Warn(ctx, "ton", "wallets.fetch",
			slog.String("status", "fail"),
			slog.String("cache", cache),
			slog.String("err", err.Error()),
			slog.Duration("duration", logger.Took(start)),
		)
		return cloneWallets(d.wallets), nil
	}
	d.wallets, d.fetchedAt = fetched, d.now()
	logger.Info(ctx, "ton", "wallets.fetch",
		slog.String("status", "ok"),
		slog.String("cache", "refresh"),
		slog.Int("count", len(fetched)),
		slog.Duration("duration", logger.Took(start)),
	)
	return cloneWallets(fetched), nil
}

// WalletInfo looks a wallet up by its app name. The lookup is case-insensitive.
func (d *Directory) WalletInfo(ctx context.Context, appName string) (WalletInfo, bool) {
	wallets, _ := d.Wallets(ctx)
	for _, w := range wallets {
		if strings.EqualFold(w.AppName, appName) {
			return w, true
		}
	}
	return WalletInfo{}, false
}

// DisplayName is the wallet's directory name, or the app name when unknown.
func (d *Directory) DisplayName(ctx context.Context, appName string) string {
	if info, ok := d.WalletInfo(ctx, appName); ok && info.Name != "" {
		return info.Name
	}
	return appName
}

func (d *Directory) fetch(ctx context.Context) ([]WalletInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	var raw []rawWallet
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode wallets list: %w", err)
	}
	out := make([]WalletInfo, 0, len(raw))
	for _, w := range raw {
		info := WalletInfo{
			AppName:       w.AppName,
			Name:          w.Name,
			ImageURL:      w.Image,
			AboutURL:      w.AboutURL,
			UniversalLink: w.UniversalURL,
			Platforms:     w.Platforms,
		}
		for _, b := range w.Bridge {
			if b.Type == "sse" && b.URL != "" {
				info.BridgeURL = b.URL
				break
			}
		}
		if info.BridgeURL == "" || info.AppName == "" {
			continue
		}
		out = append(out, info)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("wallets list has no http bridge entries")
	}
	return out, nil
}

func cloneWallets(in []WalletInfo) []WalletInfo {
	return append([]WalletInfo(nil), in...)
}
