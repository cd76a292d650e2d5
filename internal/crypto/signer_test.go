package crypto

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/alanyoungcy/clobcore/internal/domain"
)

// test key from the go-ethereum docs; never funded.
const testKeyHex = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

func testDomain() Domain {
	return Domain{
		Name:              "Exchange",
		Version:           "1",
		ChainID:           137,
		VerifyingContract: "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E",
	}
}

func testOrder() domain.Order {
	return domain.Order{
		ID:          "ord-1",
		Salt:        big.NewInt(123456789),
		Maker:       "0x6813Eb9362372EEF6200f3b1dbC3f819671cBA69",
		Signer:      "0x6813Eb9362372EEF6200f3b1dbC3f819671cBA69",
		Taker:       "0x0000000000000000000000000000000000000000",
		MarketID:    "mkt-1",
		TokenID:     "71321045679252212594626385532706912750332728571942532289631379312455583992563",
		Side:        domain.OrderSideBuy,
		MakerAmount: 5_500_000,
		TakerAmount: 10_000_000,
		Expiration:  0,
		Nonce:       0,
		FeeRateBps:  20,
	}
}

func TestHashOrderDeterministic(t *testing.T) {
	d := testDomain()
	o := testOrder()

	h1, err := HashOrder(o, d)
	if err != nil {
		t.Fatalf("HashOrder: %v", err)
	}
	h2, err := HashOrder(o, d)
	if err != nil {
		t.Fatalf("HashOrder: %v", err)
	}
	if !bytes.Equal(h1, h2) {
		t.Fatalf("hash not deterministic: %x vs %x", h1, h2)
	}
	if len(h1) != 32 {
		t.Fatalf("expected 32-byte digest, got %d", len(h1))
	}
}

func TestHashOrderFieldSensitivity(t *testing.T) {
	d := testDomain()
	base := testOrder()
	baseHash, err := HashOrder(base, d)
	if err != nil {
		t.Fatalf("HashOrder: %v", err)
	}

	mutations := map[string]func(*domain.Order){
		"salt":          func(o *domain.Order) { o.Salt = big.NewInt(987654321) },
		"maker":         func(o *domain.Order) { o.Maker = "0x1db3439a222C519ab44bb1144fC28167b4Fa6EE6" },
		"taker":         func(o *domain.Order) { o.Taker = "0x1db3439a222C519ab44bb1144fC28167b4Fa6EE6" },
		"tokenId":       func(o *domain.Order) { o.TokenID = "42" },
		"makerAmount":   func(o *domain.Order) { o.MakerAmount++ },
		"takerAmount":   func(o *domain.Order) { o.TakerAmount++ },
		"expiration":    func(o *domain.Order) { o.Expiration = 1_900_000_000 },
		"nonce":         func(o *domain.Order) { o.Nonce++ },
		"feeRateBps":    func(o *domain.Order) { o.FeeRateBps++ },
		"side":          func(o *domain.Order) { o.Side = domain.OrderSideSell },
		"signatureType": func(o *domain.Order) { o.SignatureType = domain.SignatureTypeGnosisSafe },
	}

	for field, mutate := range mutations {
		o := base
		mutate(&o)
		h, err := HashOrder(o, d)
		if err != nil {
			t.Fatalf("HashOrder after %s mutation: %v", field, err)
		}
		if bytes.Equal(h, baseHash) {
			t.Errorf("changing %s did not change the hash", field)
		}
	}
}

func TestHashOrderDomainSensitivity(t *testing.T) {
	o := testOrder()
	base, err := HashOrder(o, testDomain())
	if err != nil {
		t.Fatalf("HashOrder: %v", err)
	}

	otherChain := testDomain()
	otherChain.ChainID = 80002
	h, err := HashOrder(o, otherChain)
	if err != nil {
		t.Fatalf("HashOrder: %v", err)
	}
	if bytes.Equal(h, base) {
		t.Error("changing chain ID did not change the hash")
	}

	otherContract := testDomain()
	otherContract.VerifyingContract = "0x1db3439a222C519ab44bb1144fC28167b4Fa6EE6"
	h, err = HashOrder(o, otherContract)
	if err != nil {
		t.Fatalf("HashOrder: %v", err)
	}
	if bytes.Equal(h, base) {
		t.Error("changing verifying contract did not change the hash")
	}
}

func TestSignAndVerifyOrder(t *testing.T) {
	d := testDomain()
	signer, err := NewOrderSigner(testKeyHex, d)
	if err != nil {
		t.Fatalf("NewOrderSigner: %v", err)
	}

	o := testOrder()
	o.Maker = signer.Address().Hex()
	o.Signer = signer.Address().Hex()

	sig, err := signer.SignOrder(o)
	if err != nil {
		t.Fatalf("SignOrder: %v", err)
	}
	o.Signature = sig

	v := NewVerifier(d)
	if err := v.VerifyOrder(o); err != nil {
		t.Fatalf("VerifyOrder: %v", err)
	}
}

func TestVerifyOrderRejectsWrongSigner(t *testing.T) {
	d := testDomain()
	signer, err := NewOrderSigner(testKeyHex, d)
	if err != nil {
		t.Fatalf("NewOrderSigner: %v", err)
	}

	o := testOrder()
	o.Maker = signer.Address().Hex()
	// Claim a signer that did not produce the signature.
	o.Signer = "0x1db3439a222C519ab44bb1144fC28167b4Fa6EE6"

	sig, err := signer.SignOrder(o)
	if err != nil {
		t.Fatalf("SignOrder: %v", err)
	}
	o.Signature = sig

	err = NewVerifier(d).VerifyOrder(o)
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected INVALID_SIGNATURE, got %v", err)
	}
}

func TestVerifyOrderRejectsTamperedOrder(t *testing.T) {
	d := testDomain()
	signer, err := NewOrderSigner(testKeyHex, d)
	if err != nil {
		t.Fatalf("NewOrderSigner: %v", err)
	}

	o := testOrder()
	o.Maker = signer.Address().Hex()
	o.Signer = signer.Address().Hex()

	sig, err := signer.SignOrder(o)
	if err != nil {
		t.Fatalf("SignOrder: %v", err)
	}
	o.Signature = sig

	// Tamper after signing.
	o.MakerAmount += 1

	err = NewVerifier(d).VerifyOrder(o)
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected INVALID_SIGNATURE for tampered order, got %v", err)
	}
}
