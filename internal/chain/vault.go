// Package chain holds the on-chain collaborators the core consumes but
// does not implement: the escrow vault (root commitment, claim state) and
// the deposit indexer that feeds confirmed deposits into the ledger.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// vaultABIJSON is the slice of the escrow vault interface this client
// calls. The full contract also exposes deposit/claim, which users call
// directly.
const vaultABIJSON = `[
  {"type":"function","name":"commitRoot","stateMutability":"nonpayable",
   "inputs":[{"name":"epochId","type":"uint256"},{"name":"root","type":"bytes32"}],
   "outputs":[]},
  {"type":"function","name":"hasClaimed","stateMutability":"view",
   "inputs":[{"name":"user","type":"address"},{"name":"epochId","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"event","name":"Deposit","anonymous":false,
   "inputs":[{"name":"user","type":"address","indexed":true},
             {"name":"amount","type":"uint256","indexed":false}]}
]`

// VaultClient talks to the on-chain escrow vault with the operator key.
type VaultClient struct {
	eth      *ethclient.Client
	abi      abi.ABI
	address  common.Address
	key      *ecdsa.PrivateKey
	operator common.Address
	chainID  *big.Int
	logger   *slog.Logger
}

// NewVaultClient dials the RPC endpoint and prepares the operator signer.
func NewVaultClient(ctx context.Context, rpcURL, vaultAddr, operatorKeyHex string, chainID int64, logger *slog.Logger) (*VaultClient, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}

	parsed, err := abi.JSON(strings.NewReader(vaultABIJSON))
	if err != nil {
		return nil, fmt.Errorf("chain: parse vault ABI: %w", err)
	}

	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(operatorKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("chain: invalid operator key: %w", err)
	}

	return &VaultClient{
		eth:      eth,
		abi:      parsed,
		address:  common.HexToAddress(vaultAddr),
		key:      key,
		operator: ethcrypto.PubkeyToAddress(key.PublicKey),
		chainID:  big.NewInt(chainID),
		logger:   logger.With(slog.String("component", "vault")),
	}, nil
}

// Close releases the underlying RPC connection.
func (c *VaultClient) Close() {
	c.eth.Close()
}

// Eth exposes the underlying client for collaborators that share the
// connection (the deposit indexer).
func (c *VaultClient) Eth() *ethclient.Client {
	return c.eth
}

// Address returns the vault contract address.
func (c *VaultClient) Address() common.Address {
	return c.address
}

// CommitRoot submits commitRoot(epochId, root) signed by the operator and
// returns the transaction hash. It does not wait for confirmation; the
// epoch keeps its committed status from the submitted transaction.
func (c *VaultClient) CommitRoot(ctx context.Context, epochID uint64, root [32]byte) (string, error) {
	input, err := c.abi.Pack("commitRoot", new(big.Int).SetUint64(epochID), root)
	if err != nil {
		return "", fmt.Errorf("chain: pack commitRoot: %w", err)
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.operator)
	if err != nil {
		return "", fmt.Errorf("chain: operator nonce: %w", err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("chain: gas price: %w", err)
	}
	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From: c.operator,
		To:   &c.address,
		Data: input,
	})
	if err != nil {
		return "", fmt.Errorf("chain: estimate commitRoot gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.address,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     input,
	})
	signed, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.key)
	if err != nil {
		return "", fmt.Errorf("chain: sign commitRoot tx: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("chain: send commitRoot tx: %w", err)
	}

	c.logger.InfoContext(ctx, "root committed",
		slog.Uint64("epoch_id", epochID),
		slog.String("tx", signed.Hash().Hex()),
	)
	return signed.Hash().Hex(), nil
}

// HasClaimed reports whether a user already claimed their leaf for an
// epoch. Double-claim prevention itself lives in the vault; this is a
// convenience read for reconciliation.
func (c *VaultClient) HasClaimed(ctx context.Context, user string, epochID uint64) (bool, error) {
	input, err := c.abi.Pack("hasClaimed", common.HexToAddress(user), new(big.Int).SetUint64(epochID))
	if err != nil {
		return false, fmt.Errorf("chain: pack hasClaimed: %w", err)
	}

	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: input}, nil)
	if err != nil {
		return false, fmt.Errorf("chain: call hasClaimed: %w", err)
	}

	results, err := c.abi.Unpack("hasClaimed", out)
	if err != nil {
		return false, fmt.Errorf("chain: unpack hasClaimed: %w", err)
	}
	claimed, ok := results[0].(bool)
	if !ok {
		return false, fmt.Errorf("chain: hasClaimed returned %T", results[0])
	}
	return claimed, nil
}
