// Package crypto provides EIP-712 order hashing, signing, and signature
// verification for the trading core, plus encrypted key storage for the
// operator key used to commit settlement roots on-chain.
package crypto

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/clobcore/internal/domain"
)

// --------------------------------------------------------------------------
// EIP-712 type hashes (pre-computed keccak256 of the canonical type strings).
// --------------------------------------------------------------------------

var (
	// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)

	// Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,uint8 signatureType)
	orderTypeHash = ethcrypto.Keccak256(
		[]byte("Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,uint8 signatureType)"),
	)
)

// Domain identifies the EIP-712 signing domain. Hashes computed under
// different chain IDs or verifying contracts differ for otherwise
// identical orders, which pins every signature to one deployment of the
// on-chain exchange.
type Domain struct {
	Name              string
	Version           string
	ChainID           int64
	VerifyingContract string
}

// Separator returns the keccak256 EIP-712 domain separator for d.
func (d Domain) Separator() []byte {
	contract := common.HexToAddress(d.VerifyingContract)
	return ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(d.Name)),
			ethcrypto.Keccak256([]byte(d.Version)),
			bigIntTo32Bytes(big.NewInt(d.ChainID)),
			common.LeftPadBytes(contract.Bytes(), 32),
		),
	)
}

// HashOrder computes the EIP-712 digest of an order under the given
// domain. It is pure and deterministic: identical input yields an
// identical digest, and changing any order field (including the salt)
// changes it. The on-chain exchange computes the same digest, so off-chain
// verification is bit-identical to on-chain verification.
func HashOrder(o domain.Order, d Domain) ([]byte, error) {
	structHash, err := orderStructHash(o)
	if err != nil {
		return nil, err
	}
	return eip712Hash(d.Separator(), structHash), nil
}

// orderStructHash encodes and hashes the order fields according to the
// Order type string above.
func orderStructHash(o domain.Order) ([]byte, error) {
	if o.Salt == nil {
		return nil, fmt.Errorf("crypto: order %s has no salt", o.ID)
	}
	tokenID, ok := new(big.Int).SetString(o.TokenID, 10)
	if !ok {
		return nil, fmt.Errorf("crypto: invalid tokenId %q", o.TokenID)
	}

	return ethcrypto.Keccak256(
		concatBytes(
			orderTypeHash,
			bigIntTo32Bytes(o.Salt),
			common.LeftPadBytes(common.HexToAddress(o.Maker).Bytes(), 32),
			common.LeftPadBytes(common.HexToAddress(o.Signer).Bytes(), 32),
			common.LeftPadBytes(common.HexToAddress(o.Taker).Bytes(), 32),
			bigIntTo32Bytes(tokenID),
			bigIntTo32Bytes(big.NewInt(o.MakerAmount)),
			bigIntTo32Bytes(big.NewInt(o.TakerAmount)),
			bigIntTo32Bytes(big.NewInt(o.Expiration)),
			bigIntTo32Bytes(big.NewInt(o.Nonce)),
			bigIntTo32Bytes(big.NewInt(o.FeeRateBps)),
			bigIntTo32Bytes(big.NewInt(int64(o.Side.Uint8()))),
			bigIntTo32Bytes(big.NewInt(int64(o.SignatureType))),
		),
	), nil
}

// eip712Hash computes the final EIP-712 digest:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			domainSep,
			structHash,
		),
	)
}

// decodeSignature parses a hex-encoded 65-byte r||s||v signature and
// normalizes v from {27,28} to the {0,1} recovery ID go-ethereum expects.
func decodeSignature(sigHex string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: signature is not valid hex: %w", err)
	}
	if len(raw) != 65 {
		return nil, fmt.Errorf("crypto: expected 65-byte signature, got %d bytes", len(raw))
	}
	sig := make([]byte, 65)
	copy(sig, raw)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	return sig, nil
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
