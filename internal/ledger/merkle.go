package ledger

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/deltran/clearing-core/internal/domain"
)

// hashEvent produces the leaf hash for a single event, over its
// order-determining and value-determining fields.
func hashEvent(event *domain.LedgerEvent) [32]byte {
	h := sha256.New()
	h.Write(event.EventID[:])
	h.Write(event.PaymentID[:])
	h.Write([]byte(event.Kind))
	h.Write([]byte(event.Amount.String()))
	h.Write([]byte(event.Currency))
	h.Write([]byte(event.DebtorBank))
	h.Write([]byte(event.CreditorBank))

	var nanoBuf [8]byte
	binary.BigEndian.PutUint64(nanoBuf[:], uint64(event.NanoTime))
	h.Write(nanoBuf[:])
	h.Write(event.PrevEventID[:])

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// merkleRoot computes a binary Merkle root over leaf hashes, duplicating
// the last node at each level when the level has odd length.
func merkleRoot(leaves [][32]byte) [32]byte {
	if len(leaves) == 0 {
		return [32]byte{}
	}
	if len(leaves) == 1 {
		return leaves[0]
	}

	level := leaves
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([][32]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			h := sha256.New()
			h.Write(level[i][:])
			h.Write(level[i+1][:])
			var pair [32]byte
			copy(pair[:], h.Sum(nil))
			next = append(next, pair)
		}
		level = next
	}
	return level[0]
}

// computeBlockHash hashes the block's height, Merkle root and previous
// block hash into the identifier used for chaining.
func computeBlockHash(height uint64, merkleRoot, prevBlockHash [32]byte) [32]byte {
	h := sha256.New()

	var heightBuf [8]byte
	binary.BigEndian.PutUint64(heightBuf[:], height)
	h.Write(heightBuf[:])
	h.Write(merkleRoot[:])
	h.Write(prevBlockHash[:])

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
