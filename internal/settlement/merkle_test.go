package settlement

import (
	"bytes"
	"testing"

	"github.com/alanyoungcy/clobcore/internal/domain"
)

func entries(n int) []domain.EpochEntry {
	out := make([]domain.EpochEntry, n)
	for i := range out {
		out[i] = domain.EpochEntry{
			Address: testAddr(byte(i + 1)),
			Amount:  int64(i+1) * 1_000_000,
		}
	}
	return out
}

func leaves(es []domain.EpochEntry) [][]byte {
	out := make([][]byte, len(es))
	for i, e := range es {
		out[i] = leafHash(e)
	}
	return out
}

func TestMerkleRootDeterministic(t *testing.T) {
	es := entries(5)
	r1 := merkleRoot(leaves(es))
	r2 := merkleRoot(leaves(es))
	if !bytes.Equal(r1, r2) {
		t.Fatal("root not deterministic")
	}

	// Any amount change changes the root.
	es[2].Amount++
	if bytes.Equal(merkleRoot(leaves(es)), r1) {
		t.Fatal("amount change did not change root")
	}
}

func TestMerkleProofRoundTrip(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 5, 8, 13} {
		es := entries(n)
		ls := leaves(es)
		root := merkleRoot(ls)
		for i, e := range es {
			proof := merkleProof(ls, i)
			if !VerifyProof(root, e, proof) {
				t.Fatalf("n=%d: proof for leaf %d does not verify", n, i)
			}
		}
	}
}

func TestMerkleProofRejectsWrongLeaf(t *testing.T) {
	es := entries(6)
	ls := leaves(es)
	root := merkleRoot(ls)

	proof := merkleProof(ls, 2)
	forged := es[2]
	forged.Amount *= 2
	if VerifyProof(root, forged, proof) {
		t.Fatal("forged amount verified")
	}

	forged = es[2]
	forged.Address = testAddr(0xEE)
	if VerifyProof(root, forged, proof) {
		t.Fatal("forged address verified")
	}
}

func TestSingleLeafRootIsLeaf(t *testing.T) {
	es := entries(1)
	ls := leaves(es)
	if !bytes.Equal(merkleRoot(ls), ls[0]) {
		t.Fatal("single-leaf root should equal the leaf hash")
	}
	if p := merkleProof(ls, 0); len(p) != 0 {
		t.Fatalf("single-leaf proof should be empty, got %d siblings", len(p))
	}
}
