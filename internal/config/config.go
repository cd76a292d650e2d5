// Package config defines the top-level configuration for the trading core
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by CLOB_* environment variables.
type Config struct {
	Operator   OperatorConfig   `toml:"operator"`
	Chain      ChainConfig      `toml:"chain"`
	Signing    SigningConfig    `toml:"signing"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Engine     EngineConfig     `toml:"engine"`
	Settlement SettlementConfig `toml:"settlement"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// OperatorConfig holds the operator's Ethereum key, either plaintext or an
// encrypted keyfile plus password.
type OperatorConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig holds RPC and escrow-vault parameters.
type ChainConfig struct {
	RPCURL         string   `toml:"rpc_url"`
	ChainID        int64    `toml:"chain_id"`
	VaultAddress   string   `toml:"vault_address"`
	IndexerEnabled bool     `toml:"indexer_enabled"`
	PollInterval   duration `toml:"poll_interval"`
}

// SigningConfig holds the EIP-712 domain parameters orders are verified
// against. The chain ID comes from ChainConfig.
type SigningConfig struct {
	DomainName        string `toml:"domain_name"`
	DomainVersion     string `toml:"domain_version"`
	VerifyingContract string `toml:"verifying_contract"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// EngineConfig holds matching engine parameters.
type EngineConfig struct {
	FeeRecipient string `toml:"fee_recipient"`
	DepthLevels  int    `toml:"depth_levels"`
	StrictUnlock bool   `toml:"strict_unlock"`
}

// SettlementConfig holds settlement batching and archival parameters.
type SettlementConfig struct {
	ArchivePrefix string `toml:"archive_prefix"`
	// BatchInterval cuts an epoch automatically when positive; zero means
	// batches are cut only via the HTTP endpoint.
	BatchInterval duration `toml:"batch_interval"`
	// ArchiveInterval dumps trades older than TradeRetention to object
	// storage when positive; zero disables scheduled archival.
	ArchiveInterval duration `toml:"archive_interval"`
	TradeRetention  duration `toml:"trade_retention"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds operator alerting channels. All channels are optional;
// with none configured, notifications are silently dropped. Events limits
// which event types are forwarded; empty means all.
type NotifyConfig struct {
	TelegramToken  string   `toml:"telegram_token"`
	TelegramChatID string   `toml:"telegram_chat_id"`
	DiscordWebhook string   `toml:"discord_webhook"`
	Events         []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			ChainID:        137,
			IndexerEnabled: false,
			PollInterval:   duration{15 * time.Second},
		},
		Signing: SigningConfig{
			DomainName:    "CLOB Exchange",
			DomainVersion: "1",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "clob",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "clob-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Engine: EngineConfig{
			FeeRecipient: "fee-pool",
			DepthLevels:  50,
			StrictUnlock: false,
		},
		Settlement: SettlementConfig{
			ArchivePrefix:  "settlement/",
			TradeRetention: duration{30 * 24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8080,
			CORSOrigins: nil,
			RateLimit:   0,
			RateWindow:  duration{time.Second},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"serve":  true, // HTTP + ws + engine + settlement
	"engine": true, // engine + settlement, no API surface
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration for internal consistency and returns a
// single error listing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, engine)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Operator key is only required when the vault client is in play.
	if c.Chain.RPCURL != "" {
		if c.Operator.PrivateKey == "" && c.Operator.EncryptedKeyPath == "" {
			errs = append(errs, "operator: either private_key or encrypted_key_path must be set when chain.rpc_url is configured")
		}
		if c.Chain.VaultAddress == "" {
			errs = append(errs, "chain: vault_address must be set when rpc_url is configured")
		}
	}
	if c.Operator.EncryptedKeyPath != "" && c.Operator.KeyPassword == "" {
		errs = append(errs, "operator: key_password is required when encrypted_key_path is set")
	}

	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	if c.Signing.DomainName == "" {
		errs = append(errs, "signing: domain_name must not be empty")
	}
	if c.Signing.DomainVersion == "" {
		errs = append(errs, "signing: domain_version must not be empty")
	}

	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	if c.Engine.FeeRecipient == "" {
		errs = append(errs, "engine: fee_recipient must not be empty")
	}
	if c.Engine.DepthLevels < 1 {
		errs = append(errs, "engine: depth_levels must be >= 1")
	}

	if strings.ToLower(c.Mode) == "serve" && !c.Server.Enabled {
		errs = append(errs, "server: must be enabled in serve mode (or use mode engine)")
	}
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be positive when rate_limit is set")
		}
	}

	if c.Settlement.ArchiveInterval.Duration > 0 && c.Settlement.TradeRetention.Duration <= 0 {
		errs = append(errs, "settlement: trade_retention must be positive when archive_interval is set")
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
