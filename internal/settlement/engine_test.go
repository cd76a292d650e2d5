package settlement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/clobcore/internal/domain"
)

func testAddr(b byte) string {
	return fmt.Sprintf("0x%02x00000000000000000000000000000000000000", b)
}

var (
	alice = testAddr(0xA1)
	bob   = testAddr(0xB2)
	carol = testAddr(0xC3)
)

func newTestEngine() *Engine {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), Options{})
}

func trade(taker, maker string, takerSide domain.OrderSide, priceHundredths, units, fee int64) domain.Trade {
	return domain.Trade{
		ID:        fmt.Sprintf("t-%s-%s-%d", taker, maker, units),
		MarketID:  "mkt-1",
		TokenID:   "42",
		Maker:     maker,
		Taker:     taker,
		TakerSide: takerSide,
		Amount:    units * 1_000_000,
		Price:     priceHundredths * (domain.PriceUnit / 100),
		Fee:       fee,
		MatchType: domain.MatchTypeComplementary,
		Timestamp: time.Now(),
	}
}

func TestCreateBatchEmptyIsCallerError(t *testing.T) {
	e := newTestEngine()
	_, err := e.CreateBatch(context.Background())
	if !errors.Is(err, domain.ErrNoPendingTrades) {
		t.Fatalf("expected ErrNoPendingTrades, got %v", err)
	}
}

func TestCreateBatchNetsPerParticipant(t *testing.T) {
	e := newTestEngine()

	// Alice buys 10 at 0.50 from Bob (cost 5.0), then sells 4 at 0.50
	// back to Bob (cost 2.0). Net: Alice -3.0, Bob +3.0 (no fees).
	e.Record(trade(alice, bob, domain.OrderSideBuy, 50, 10, 0))
	e.Record(trade(bob, alice, domain.OrderSideBuy, 50, 4, 0))

	ep, err := e.CreateBatch(context.Background())
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if ep.ID != 1 || ep.Status != domain.EpochStatusPending {
		t.Fatalf("epoch = %+v", ep)
	}
	if len(ep.Entries) != 1 {
		t.Fatalf("expected exactly one positive-net leaf, got %d", len(ep.Entries))
	}
	if ep.Entries[0].Address != bob || ep.Entries[0].Amount != 3_000_000 {
		t.Fatalf("entry = %+v", ep.Entries[0])
	}

	// Alice's net is negative: no leaf, no proof.
	if _, err := e.Proof(ep.ID, alice); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected NOT_FOUND for negative-net address, got %v", err)
	}
}

func TestCreateBatchDeductsFees(t *testing.T) {
	e := newTestEngine()
	e.Record(trade(alice, bob, domain.OrderSideBuy, 55, 10, 90_000))

	ep, err := e.CreateBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// Seller is owed cost minus fee: 5.5 - 0.09.
	if len(ep.Entries) != 1 || ep.Entries[0].Amount != 5_410_000 {
		t.Fatalf("entries = %+v", ep.Entries)
	}
}

func TestCreateBatchDrainsAtomically(t *testing.T) {
	e := newTestEngine()
	e.Record(trade(alice, bob, domain.OrderSideBuy, 50, 10, 0))

	if _, err := e.CreateBatch(context.Background()); err != nil {
		t.Fatal(err)
	}
	if e.PendingCount() != 0 {
		t.Fatal("pending list not drained")
	}
	// Trades recorded after the drain go to the next epoch.
	e.Record(trade(alice, bob, domain.OrderSideBuy, 50, 5, 0))
	ep, err := e.CreateBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ep.ID != 2 || ep.TradeCount != 1 {
		t.Fatalf("second epoch = %+v", ep)
	}
}

func TestEpochIDsStrictlyIncrease(t *testing.T) {
	e := newTestEngine()
	for i := 1; i <= 3; i++ {
		e.Record(trade(alice, bob, domain.OrderSideBuy, 50, int64(i), 0))
		ep, err := e.CreateBatch(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if ep.ID != uint64(i) {
			t.Fatalf("epoch ID = %d, want %d", ep.ID, i)
		}
	}
	all := e.Epochs()
	if len(all) != 3 || all[0].ID != 1 || all[2].ID != 3 {
		t.Fatalf("epochs = %+v", all)
	}
}

func TestProofCompleteness(t *testing.T) {
	e := newTestEngine()
	// Mixed flows; bob and carol end up with positive nets.
	e.Record(trade(alice, bob, domain.OrderSideBuy, 50, 10, 0))
	e.Record(trade(alice, carol, domain.OrderSideBuy, 40, 5, 0))
	sink := testAddr(0xD4)
	e.Record(trade(sink, alice, domain.OrderSideBuy, 60, 2, 0))

	ep, err := e.CreateBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	for _, entry := range ep.Entries {
		p, err := e.Proof(ep.ID, entry.Address)
		if err != nil {
			t.Fatalf("proof for %s: %v", entry.Address, err)
		}
		if p.Amount != entry.Amount || p.MerkleRoot != ep.MerkleRoot {
			t.Fatalf("proof mismatch: %+v vs entry %+v", p, entry)
		}

		// Re-derivation is byte-identical.
		again, err := e.Proof(ep.ID, entry.Address)
		if err != nil {
			t.Fatal(err)
		}
		if len(again.Proof) != len(p.Proof) {
			t.Fatal("proof length changed between derivations")
		}
		for i := range p.Proof {
			if p.Proof[i] != again.Proof[i] {
				t.Fatal("proof not byte-identical across derivations")
			}
		}
	}

	if _, err := e.Proof(99, alice); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected NOT_FOUND for unknown epoch, got %v", err)
	}
}

// stubVault records commits.
type stubVault struct {
	commits int
	lastID  uint64
}

func (v *stubVault) CommitRoot(_ context.Context, epochID uint64, _ [32]byte) (string, error) {
	v.commits++
	v.lastID = epochID
	return "0xdeadbeef", nil
}

func (v *stubVault) HasClaimed(context.Context, string, uint64) (bool, error) {
	return false, nil
}

func TestStatusTransitionsForwardOnly(t *testing.T) {
	vault := &stubVault{}
	e := New(slog.New(slog.NewTextHandler(io.Discard, nil)), Options{Vault: vault})
	e.Record(trade(alice, bob, domain.OrderSideBuy, 50, 10, 0))

	ep, err := e.CreateBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	// Cannot settle before commit.
	if _, err := e.MarkSettled(context.Background(), ep.ID); err == nil {
		t.Fatal("settle before commit should fail")
	}

	committed, err := e.CommitEpoch(context.Background(), ep.ID)
	if err != nil {
		t.Fatalf("CommitEpoch: %v", err)
	}
	if committed.Status != domain.EpochStatusCommitted || committed.CommitTx != "0xdeadbeef" {
		t.Fatalf("committed = %+v", committed)
	}
	if vault.commits != 1 || vault.lastID != ep.ID {
		t.Fatalf("vault = %+v", vault)
	}

	// Double commit rejected.
	if _, err := e.CommitEpoch(context.Background(), ep.ID); err == nil {
		t.Fatal("second commit should fail")
	}

	settled, err := e.MarkSettled(context.Background(), ep.ID)
	if err != nil {
		t.Fatalf("MarkSettled: %v", err)
	}
	if settled.Status != domain.EpochStatusSettled {
		t.Fatalf("settled = %+v", settled)
	}
}
