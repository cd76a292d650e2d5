// Package settlement batches executed trades into epochs, commits each
// epoch as a Merkle root over net per-participant balance deltas, and
// derives the inclusion proofs users present to the on-chain escrow vault.
package settlement

import (
	"bytes"
	"encoding/hex"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/clobcore/internal/domain"
)

// leafHash encodes one (address, amount) entry exactly the way the vault
// recomputes it on-chain: keccak256(20-byte address || uint256 amount).
func leafHash(e domain.EpochEntry) []byte {
	addr := common.HexToAddress(e.Address)
	amount := make([]byte, 32)
	big.NewInt(e.Amount).FillBytes(amount)
	return ethcrypto.Keccak256(addr.Bytes(), amount)
}

// nodeHash combines two child hashes with the smaller one first, so proof
// verification needs no position bits.
func nodeHash(a, b []byte) []byte {
	if bytes.Compare(a, b) > 0 {
		a, b = b, a
	}
	return ethcrypto.Keccak256(a, b)
}

// merkleRoot folds the leaf hashes up to a single root. An odd node at
// any level is carried up unchanged. Empty input yields a zero root.
func merkleRoot(leaves [][]byte) []byte {
	if len(leaves) == 0 {
		return make([]byte, 32)
	}
	level := leaves
	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, nodeHash(level[i], level[i+1]))
		}
		level = next
	}
	return level[0]
}

// merkleProof returns the sibling path for the leaf at index. The path
// runs leaf to root; odd carried-up nodes contribute no sibling.
func merkleProof(leaves [][]byte, index int) [][]byte {
	var proof [][]byte
	level := leaves
	for len(level) > 1 {
		sibling := index ^ 1
		if sibling < len(level) {
			proof = append(proof, level[sibling])
		}
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, nodeHash(level[i], level[i+1]))
		}
		level = next
		index /= 2
	}
	return proof
}

// VerifyProof folds a leaf up through the sibling path and reports
// whether it reproduces the root. This mirrors the vault's on-chain
// verification and backs the proof tests.
func VerifyProof(root []byte, entry domain.EpochEntry, proof [][]byte) bool {
	h := leafHash(entry)
	for _, sibling := range proof {
		h = nodeHash(h, sibling)
	}
	return bytes.Equal(h, root)
}

func hexHash(h []byte) string {
	return "0x" + hex.EncodeToString(h)
}
