package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Canonical slot constants. Earlier builds shipped 5 on one surface and 6 on
// another; both surfaces now read these.
const (
	DefaultFreeSlots       = 6
	DefaultSlotsPerPayment = 6
	MaxTotalSlots          = 100
)

type Config struct {
	// Telegram
	BotToken string
	// chats allowed to use the bot; each one is a notifier surface
	AllowedChatIDs []int64

	// Surface endpoint for out-of-process surfaces, 0 disables it
	SurfacePort int

	// Provider (companion server as seen by the tracker)
	ProviderBaseURL string
	ProviderAPIKey  string

	// Database
	DBPath string

	// Slots
	FreeSlots       int
	SlotsPerPayment int

	// Refresh
	WalletTTL       time.Duration
	RefreshInterval time.Duration

	// Payment polling
	PaymentPollInterval time.Duration
	PaymentMaxAttempts  int

	// Rendering
	IPFSGateway   string
	AssetsPerView int

	// Companion server
	ListenPort           int
	BlockfrostBaseURL    string
	BlockfrostProjectID  string
	ServiceWalletAddr    string
	PaymentPriceLovelace int64
	PaymentTTL           time.Duration
	CacheTTL             time.Duration
	CacheSize            int
	LedgerPath           string
}

func Load() *Config {
	return &Config{
		// Telegram
		BotToken:       getEnv("BOT_TOKEN", ""),
		AllowedChatIDs: getEnvInt64List("ALLOWED_CHAT_IDS"),

		SurfacePort: getEnvInt("SURFACE_PORT", 0),

		// Provider
		ProviderBaseURL: strings.TrimSuffix(getEnv("PROVIDER_BASE_URL", "http://localhost:8080"), "/"),
		ProviderAPIKey:  getEnv("PROVIDER_API_KEY", ""),

		// Database
		DBPath: getEnv("DB_PATH", "./tracker.db"),

		// Slots
		FreeSlots:       getEnvInt("FREE_SLOTS", DefaultFreeSlots),
		SlotsPerPayment: getEnvInt("SLOTS_PER_PAYMENT", DefaultSlotsPerPayment),

		// Refresh
		WalletTTL:       getEnvDuration("WALLET_TTL", 10*time.Minute),
		RefreshInterval: getEnvDuration("REFRESH_INTERVAL", time.Minute),

		// Payment polling
		PaymentPollInterval: getEnvDuration("PAYMENT_POLL_INTERVAL", time.Second),
		PaymentMaxAttempts:  getEnvInt("PAYMENT_MAX_ATTEMPTS", 180),

		// Rendering
		IPFSGateway:   getEnv("IPFS_GATEWAY", "https://ipfs.io/ipfs/"),
		AssetsPerView: getEnvInt("ASSETS_PER_VIEW", 50),

		// Companion server
		ListenPort:           getEnvInt("LISTEN_PORT", 8080),
		BlockfrostBaseURL:    strings.TrimSuffix(getEnv("BLOCKFROST_BASE_URL", "https://cardano-mainnet.blockfrost.io/api/v0"), "/"),
		BlockfrostProjectID:  getEnv("BLOCKFROST_PROJECT_ID", ""),
		ServiceWalletAddr:    getEnv("SERVICE_WALLET_ADDR", ""),
		PaymentPriceLovelace: getEnvInt64("PAYMENT_PRICE_LOVELACE", 10_000_000),
		PaymentTTL:           getEnvDuration("PAYMENT_TTL", 30*time.Minute),
		CacheTTL:             getEnvDuration("CACHE_TTL", 30*time.Second),
		CacheSize:            getEnvInt("CACHE_SIZE", 1024),
		LedgerPath:           getEnv("LEDGER_PATH", "./companion.db"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvInt64List parses a comma-separated list, skipping malformed entries
func getEnvInt64List(key string) []int64 {
	var out []int64
	for _, part := range strings.Split(os.Getenv(key), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if i, err := strconv.ParseInt(part, 10, 64); err == nil {
			out = append(out, i)
		}
	}
	return out
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
