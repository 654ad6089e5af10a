package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
	// SecretToken is checked against X-Telegram-Bot-Api-Secret-Token.
	SecretToken string `yaml:"secret_token" envconfig:"WEBHOOK_SECRET"`
	DropPending bool   `yaml:"drop_pending"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir" envconfig:"LOG_DIR"`
	BotFile     string `yaml:"bot_file"`
	// MaxSizeMB rotates the log file to <file>.1 past this size; 0 disables.
	MaxSizeMB int `yaml:"max_size_mb" envconfig:"LOG_MAX_SIZE_MB"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// TonConnectConfig carries the wallet-connection and transfer settings.
type TonConnectConfig struct {
	ManifestURL    string `yaml:"manifest_url" envconfig:"TONCONNECT_MANIFEST_URL"`
	WalletsListURL string `yaml:"wallets_list_url" envconfig:"TONCONNECT_WALLETS_LIST_URL"`
	// WalletsCacheTTLSeconds bounds how long the fetched wallets list is reused.
	WalletsCacheTTLSeconds int `yaml:"wallets_cache_ttl_seconds"`
	// ZeroAddress is the contract address recorded for native transfers.
	ZeroAddress string `yaml:"zero_address" envconfig:"ZEROADDRESS_TON"`
	// TxTimeoutMS is both the validity window and the confirmation wait.
	TxTimeoutMS     int      `yaml:"tx_timeout_ms" envconfig:"DELETE_SEND_TX_MESSAGE_TIMEOUT_MS"`
	AddressLength   int      `yaml:"address_length" envconfig:"DEFAULT_TONWALLET_ADDRESS"`
	AddressPrefixes []string `yaml:"address_prefixes" envconfig:"TON_ADDRESS_PREFIXES"`
	// BotLink is the bot's own t.me link used as the wallet return strategy.
	BotLink string `yaml:"bot_link" envconfig:"TELEGRAM_BOT_LINK"`
}

// ConversationConfig bounds the lifetime of chat sessions and flows.
type ConversationConfig struct {
	FlowTTLSeconds       int `yaml:"flow_ttl_seconds" envconfig:"FLOW_TTL_SECONDS"`
	SessionTTLSeconds    int `yaml:"session_ttl_seconds" envconfig:"CONNECTOR_TTL_SECONDS"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
}

// StorageConfig selects where TON Connect bridge sessions are kept.
type StorageConfig struct {
	Driver     string `yaml:"driver" envconfig:"STORAGE_DRIVER"`
	SQLitePath string `yaml:"sqlite_path" envconfig:"SQLITE_PATH"`
}

// MetricsConfig controls the Prometheus listener.
type MetricsConfig struct {
	Listen string `yaml:"listen" envconfig:"METRICS_LISTEN"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// StorageMemory keeps bridge sessions in process memory.
	StorageMemory = "memory"
	// StoragePostgres keeps bridge sessions in PostgreSQL.
	StoragePostgres = "postgres"
	// StorageSQLite keeps bridge sessions in a local SQLite file.
	StorageSQLite = "sqlite"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateInlineQuery identifies inline query updates for rate limit exclusions.
	UpdateInlineQuery = "inline_query"
)

// Defaults applied by Normalize when the field is left empty.
const (
	DefaultWalletsListURL  = "https://raw.githubusercontent.com/ton-blockchain/wallets-list/main/wallets-v2.json"
	DefaultZeroAddress     = "EQAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAM9c"
	DefaultTxTimeoutMS     = 600000
	DefaultAddressLength   = 48
	DefaultFlowTTL         = 600
	DefaultSessionTTL      = 86400
	DefaultSweepInterval   = 30
	DefaultWalletsCacheTTL = 3600
)

// DefaultAddressPrefixes lists the first two characters accepted for user-friendly addresses.
var DefaultAddressPrefixes = []string{"EQ", "Ef", "UQ"}

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
// - "inline_query": inline query updates
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the bot configuration.
type Config struct {
	Telegram     TelegramConfig     `yaml:"telegram"`
	Webhook      WebhookConfig      `yaml:"webhook"`
	Logging      LoggingConfig      `yaml:"logging"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	TonConnect   TonConnectConfig   `yaml:"tonconnect"`
	Conversation ConversationConfig `yaml:"conversation"`
	Storage      StorageConfig      `yaml:"storage"`
	Database     DatabaseConfig     `yaml:"database"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// CoreConfig lets *Config satisfy the runner's config carrier.
func (c *Config) CoreConfig() *Config { return c }

// Load reads configuration from an optional YAML file and environment variables.
// A missing file is not an error: the process environment alone is enough.
func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := Normalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadUnchecked reads configuration like Load but only fills the TON Connect
// defaults, skipping the checks that matter to a running bot. Offline
// tooling uses it.
func LoadUnchecked(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := normalizeTonConnect(&cfg.TonConnect); err != nil {
		return nil, err
	}
	return cfg, nil
}

func read(path string) (*Config, error) {
	var cfg Config

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse YAML config: %w", err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" || rm == "polling" {
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	if cfg.Logging.MaxSizeMB < 0 {
		return fmt.Errorf("logging.max_size_mb must be >= 0")
	}

	allowed := map[string]struct{}{
		UpdateCallback:    {},
		UpdateMessage:     {},
		UpdateInlineQuery: {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}

	if strings.TrimSpace(cfg.TonConnect.ManifestURL) == "" {
		return fmt.Errorf("tonconnect.manifest_url is required")
	}
	if err := normalizeTonConnect(&cfg.TonConnect); err != nil {
		return err
	}
	normalizeConversation(&cfg.Conversation)
	return normalizeStorage(cfg)
}

func normalizeTonConnect(tc *TonConnectConfig) error {
	if strings.TrimSpace(tc.WalletsListURL) == "" {
		tc.WalletsListURL = DefaultWalletsListURL
	}
	if tc.WalletsCacheTTLSeconds <= 0 {
		tc.WalletsCacheTTLSeconds = DefaultWalletsCacheTTL
	}
	if strings.TrimSpace(tc.ZeroAddress) == "" {
		tc.ZeroAddress = DefaultZeroAddress
	}
	if tc.TxTimeoutMS < 0 {
		return fmt.Errorf("tonconnect.tx_timeout_ms must be >= 0")
	}
	if tc.TxTimeoutMS == 0 {
		tc.TxTimeoutMS = DefaultTxTimeoutMS
	}
	if tc.AddressLength < 0 {
		return fmt.Errorf("tonconnect.address_length must be >= 0")
	}
	if tc.AddressLength == 0 {
		tc.AddressLength = DefaultAddressLength
	}
	prefixes := make([]string, 0, len(tc.AddressPrefixes))
	for _, p := range tc.AddressPrefixes {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if len(p) != 2 {
			return fmt.Errorf("invalid tonconnect.address_prefixes value %q; prefixes are two characters", p)
		}
		prefixes = append(prefixes, p)
	}
	if len(prefixes) == 0 {
		prefixes = append(prefixes, DefaultAddressPrefixes...)
	}
	tc.AddressPrefixes = prefixes
	return nil
}

func normalizeConversation(c *ConversationConfig) {
	if c.FlowTTLSeconds <= 0 {
		c.FlowTTLSeconds = DefaultFlowTTL
	}
	if c.SessionTTLSeconds <= 0 {
		c.SessionTTLSeconds = DefaultSessionTTL
	}
	if c.SweepIntervalSeconds <= 0 {
		c.SweepIntervalSeconds = DefaultSweepInterval
	}
}

func normalizeStorage(cfg *Config) error {
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if driver == "" {
		driver = StorageMemory
	}
	switch driver {
	case StorageMemory:
	case StorageSQLite:
		if strings.TrimSpace(cfg.Storage.SQLitePath) == "" {
			cfg.Storage.SQLitePath = "./data/tonbot.db"
		}
	case StoragePostgres:
		if strings.TrimSpace(cfg.Database.Host) == "" || strings.TrimSpace(cfg.Database.Name) == "" {
			return fmt.Errorf("database.host and database.name are required when storage.driver is 'postgres'")
		}
		if cfg.Database.Port == "" {
			cfg.Database.Port = "5432"
		}
		if cfg.Database.SSLMode == "" {
			cfg.Database.SSLMode = "disable"
		}
		if cfg.Database.MaxConnections <= 0 {
			cfg.Database.MaxConnections = 5
		}
	default:
		return fmt.Errorf("invalid storage.driver %q; allowed: memory, postgres, sqlite", cfg.Storage.Driver)
	}
	cfg.Storage.Driver = driver
	return nil
}
