package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/clobcore/internal/domain"
)

// Verifier validates order signatures under a fixed signing domain.
type Verifier struct {
	domain Domain
}

// NewVerifier creates a Verifier for the given domain.
func NewVerifier(d Domain) *Verifier {
	return &Verifier{domain: d}
}

// HashOrder computes the order's EIP-712 digest under the verifier's
// domain. The digest doubles as the order's canonical identity.
func (v *Verifier) HashOrder(o domain.Order) ([]byte, error) {
	return HashOrder(o, v.domain)
}

// VerifyOrder recovers the address that signed the order's EIP-712 digest
// and requires it to equal order.Signer. A malformed or mismatching
// signature yields a CodedError with code INVALID_SIGNATURE.
func (v *Verifier) VerifyOrder(o domain.Order) error {
	digest, err := HashOrder(o, v.domain)
	if err != nil {
		return domain.Errf(domain.CodeValidation, "order %s: %v", o.ID, err)
	}

	sig, err := decodeSignature(o.Signature)
	if err != nil {
		return domain.Errf(domain.CodeInvalidSignature, "order %s: %v", o.ID, err)
	}

	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return domain.Errf(domain.CodeInvalidSignature, "order %s: recover: %v", o.ID, err)
	}

	recovered := ethcrypto.PubkeyToAddress(*pub)
	if recovered != common.HexToAddress(o.Signer) {
		return domain.Errf(domain.CodeInvalidSignature,
			"order %s: signature recovers %s, want %s", o.ID, recovered.Hex(), o.Signer)
	}
	return nil
}

// OrderSigner signs orders with a secp256k1 private key. It is used by
// client tooling and tests; the engine itself only verifies.
type OrderSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	domain     Domain
}

// NewOrderSigner creates an OrderSigner from a hex-encoded private key.
func NewOrderSigner(privateKeyHex string, d Domain) (*OrderSigner, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}
	return &OrderSigner{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		domain:     d,
	}, nil
}

// Address returns the Ethereum address derived from the signer's key.
func (s *OrderSigner) Address() common.Address {
	return s.address
}

// SignOrder computes the order's EIP-712 digest and signs it, returning a
// hex-encoded 65-byte r||s||v signature with v in {27,28}.
func (s *OrderSigner) SignOrder(o domain.Order) (string, error) {
	digest, err := HashOrder(o, s.domain)
	if err != nil {
		return "", err
	}

	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto: signing order %s: %w", o.ID, err)
	}

	// go-ethereum returns v in {0,1}; EIP-712 expects v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}
