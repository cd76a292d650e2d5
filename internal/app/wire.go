package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/clobcore/internal/blob/s3"
	"github.com/alanyoungcy/clobcore/internal/cache/redis"
	"github.com/alanyoungcy/clobcore/internal/chain"
	"github.com/alanyoungcy/clobcore/internal/config"
	"github.com/alanyoungcy/clobcore/internal/crypto"
	"github.com/alanyoungcy/clobcore/internal/domain"
	"github.com/alanyoungcy/clobcore/internal/engine"
	"github.com/alanyoungcy/clobcore/internal/ledger"
	"github.com/alanyoungcy/clobcore/internal/notify"
	"github.com/alanyoungcy/clobcore/internal/settlement"
	"github.com/alanyoungcy/clobcore/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate.
// It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Core
	Ledger     *ledger.Ledger
	Engine     *engine.Engine
	Settlement *settlement.Engine

	// Stores
	OrderStore domain.OrderStore
	TradeStore domain.TradeStore
	EpochStore domain.EpochStore

	// Caches
	BookCache   domain.BookCache
	SignalBus   domain.SignalBus
	BlockCursor domain.BlockCursor
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager

	// Blob storage
	BlobWriter *s3blob.Writer
	BlobReader *s3blob.Reader
	Archiver   *s3blob.TradeArchiver

	// Chain
	Vault   *chain.VaultClient
	Indexer *chain.DepositIndexer

	// Operator alerting
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	orderStore := postgres.NewOrderStore(pool)
	tradeStore := postgres.NewTradeStore(pool)
	epochStore := postgres.NewEpochStore(pool)
	deps.OrderStore = orderStore
	deps.TradeStore = tradeStore
	deps.EpochStore = epochStore

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.BookCache = redis.NewBookCache(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.BlockCursor = redis.NewBlockCursor(redisClient, "deposits")
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)

	// --- S3 blob storage ---
	s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
		Endpoint:       cfg.S3.Endpoint,
		Region:         cfg.S3.Region,
		Bucket:         cfg.S3.Bucket,
		AccessKey:      cfg.S3.AccessKey,
		SecretKey:      cfg.S3.SecretKey,
		UseSSL:         cfg.S3.UseSSL,
		ForcePathStyle: cfg.S3.ForcePathStyle,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: s3: %w", err)
	}
	closers = append(closers, func() { _ = s3Client.Close() })

	deps.BlobWriter = s3blob.NewWriter(s3Client)
	deps.BlobReader = s3blob.NewReader(s3Client)
	deps.Archiver = s3blob.NewTradeArchiver(deps.BlobWriter, deps.BlobReader, tradeStore, logger)

	// --- Chain ---
	if cfg.Chain.RPCURL != "" {
		operatorKey, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Operator.PrivateKey,
			EncryptedKeyPath: cfg.Operator.EncryptedKeyPath,
			KeyPassword:      cfg.Operator.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: operator key: %w", err)
		}

		vault, err := chain.NewVaultClient(ctx, cfg.Chain.RPCURL, cfg.Chain.VaultAddress, operatorKey, cfg.Chain.ChainID, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: vault client: %w", err)
		}
		closers = append(closers, vault.Close)
		deps.Vault = vault
	}

	// --- Core: ledger, verifier, matching engine, settlement ---
	deps.Ledger = ledger.New()

	verifier := crypto.NewVerifier(crypto.Domain{
		Name:              cfg.Signing.DomainName,
		Version:           cfg.Signing.DomainVersion,
		ChainID:           cfg.Chain.ChainID,
		VerifyingContract: cfg.Signing.VerifyingContract,
	})

	deps.Engine = engine.New(verifier, deps.Ledger, logger, engine.Config{
		FeeRecipient: cfg.Engine.FeeRecipient,
		DepthLevels:  cfg.Engine.DepthLevels,
		StrictUnlock: cfg.Engine.StrictUnlock,
	})

	var vault settlement.VaultClient
	if deps.Vault != nil {
		vault = deps.Vault
	}
	deps.Settlement = settlement.New(logger, settlement.Options{
		Store:         epochStore,
		Archiver:      deps.BlobWriter,
		Vault:         vault,
		ArchivePrefix: cfg.Settlement.ArchivePrefix,
	})
	if err := deps.Settlement.Restore(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: settlement restore: %w", err)
	}

	// --- Deposit indexer ---
	if deps.Vault != nil && cfg.Chain.IndexerEnabled {
		deps.Indexer = chain.NewDepositIndexer(
			deps.Vault.Eth(),
			deps.Vault.Address(),
			deps.Ledger,
			deps.BlockCursor,
			cfg.Chain.PollInterval.Duration,
			logger,
		)
	}

	// --- Operator alerting ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhook != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhook))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
