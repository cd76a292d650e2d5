package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/clobcore/internal/domain"
	"github.com/alanyoungcy/clobcore/internal/ledger"
)

// depositEventSig is keccak256("Deposit(address,uint256)").
var depositEventSig = common.BytesToHash(ethcrypto.Keccak256([]byte("Deposit(address,uint256)")))

// DepositIndexer polls the vault's Deposit logs and credits the ledger.
// The last processed block is tracked through a BlockCursor so each
// deposit is credited exactly once across restarts.
type DepositIndexer struct {
	eth      *ethclient.Client
	vault    common.Address
	ledger   *ledger.Ledger
	cursor   domain.BlockCursor
	interval time.Duration
	logger   *slog.Logger
}

// NewDepositIndexer creates an indexer polling every interval.
func NewDepositIndexer(eth *ethclient.Client, vault common.Address, l *ledger.Ledger, cursor domain.BlockCursor, interval time.Duration, logger *slog.Logger) *DepositIndexer {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &DepositIndexer{
		eth:      eth,
		vault:    vault,
		ledger:   l,
		cursor:   cursor,
		interval: interval,
		logger:   logger.With(slog.String("component", "deposit_indexer")),
	}
}

// Run polls until the context is cancelled.
func (ix *DepositIndexer) Run(ctx context.Context) error {
	ticker := time.NewTicker(ix.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := ix.poll(ctx); err != nil {
				ix.logger.ErrorContext(ctx, "deposit poll failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// poll processes Deposit logs from the cursor up to the current head and
// advances the cursor only after every log in the range was credited.
func (ix *DepositIndexer) poll(ctx context.Context) error {
	last, err := ix.cursor.Get(ctx)
	if err != nil {
		return fmt.Errorf("chain: read block cursor: %w", err)
	}
	head, err := ix.eth.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("chain: head block: %w", err)
	}
	if head <= last {
		return nil
	}

	logs, err := ix.eth.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(last + 1),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{ix.vault},
		Topics:    [][]common.Hash{{depositEventSig}},
	})
	if err != nil {
		return fmt.Errorf("chain: filter deposit logs: %w", err)
	}

	for _, lg := range logs {
		if len(lg.Topics) < 2 || len(lg.Data) < 32 {
			ix.logger.Warn("malformed deposit log skipped",
				slog.String("tx", lg.TxHash.Hex()),
			)
			continue
		}
		user := common.BytesToAddress(lg.Topics[1].Bytes())
		amount := new(big.Int).SetBytes(lg.Data[:32])
		if !amount.IsInt64() {
			ix.logger.Warn("deposit amount out of range",
				slog.String("tx", lg.TxHash.Hex()),
				slog.String("amount", amount.String()),
			)
			continue
		}

		ix.ledger.Credit(user.Hex(), domain.CollateralAssetID, amount.Int64())
		ix.logger.InfoContext(ctx, "deposit credited",
			slog.String("user", user.Hex()),
			slog.Int64("amount", amount.Int64()),
			slog.String("tx", lg.TxHash.Hex()),
		)
	}

	if err := ix.cursor.Set(ctx, head); err != nil {
		return fmt.Errorf("chain: advance block cursor: %w", err)
	}
	return nil
}
