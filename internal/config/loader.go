package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CLOB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CLOB_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Operator ──
	setStr(&cfg.Operator.PrivateKey, "CLOB_OPERATOR_PRIVATE_KEY")
	setStr(&cfg.Operator.EncryptedKeyPath, "CLOB_OPERATOR_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Operator.KeyPassword, "CLOB_OPERATOR_KEY_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "CLOB_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "CLOB_CHAIN_ID")
	setStr(&cfg.Chain.VaultAddress, "CLOB_CHAIN_VAULT_ADDRESS")
	setBool(&cfg.Chain.IndexerEnabled, "CLOB_CHAIN_INDEXER_ENABLED")
	setDuration(&cfg.Chain.PollInterval, "CLOB_CHAIN_POLL_INTERVAL")

	// ── Signing ──
	setStr(&cfg.Signing.DomainName, "CLOB_SIGNING_DOMAIN_NAME")
	setStr(&cfg.Signing.DomainVersion, "CLOB_SIGNING_DOMAIN_VERSION")
	setStr(&cfg.Signing.VerifyingContract, "CLOB_SIGNING_VERIFYING_CONTRACT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "CLOB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CLOB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CLOB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CLOB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CLOB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CLOB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CLOB_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CLOB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CLOB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CLOB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CLOB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CLOB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CLOB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CLOB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CLOB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CLOB_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "CLOB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CLOB_S3_REGION")
	setStr(&cfg.S3.Bucket, "CLOB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CLOB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CLOB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CLOB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CLOB_S3_FORCE_PATH_STYLE")

	// ── Engine ──
	setStr(&cfg.Engine.FeeRecipient, "CLOB_ENGINE_FEE_RECIPIENT")
	setInt(&cfg.Engine.DepthLevels, "CLOB_ENGINE_DEPTH_LEVELS")
	setBool(&cfg.Engine.StrictUnlock, "CLOB_ENGINE_STRICT_UNLOCK")

	// ── Settlement ──
	setStr(&cfg.Settlement.ArchivePrefix, "CLOB_SETTLEMENT_ARCHIVE_PREFIX")
	setDuration(&cfg.Settlement.BatchInterval, "CLOB_SETTLEMENT_BATCH_INTERVAL")
	setDuration(&cfg.Settlement.ArchiveInterval, "CLOB_SETTLEMENT_ARCHIVE_INTERVAL")
	setDuration(&cfg.Settlement.TradeRetention, "CLOB_SETTLEMENT_TRADE_RETENTION")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CLOB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CLOB_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CLOB_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "CLOB_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "CLOB_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "CLOB_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CLOB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CLOB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhook, "CLOB_NOTIFY_DISCORD_WEBHOOK")
	setStringSlice(&cfg.Notify.Events, "CLOB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "CLOB_MODE")
	setStr(&cfg.LogLevel, "CLOB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
