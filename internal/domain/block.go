package domain

import (
	"time"

	"github.com/google/uuid"
)

// Block is a finalized, Merkle-committed, hash-chained batch of events
// (spec.md §3, §4.1).
type Block struct {
	BlockID             uuid.UUID   `json:"block_id"`
	Height              uint64      `json:"height"`
	MerkleRoot          [32]byte    `json:"merkle_root"`
	PrevBlockHash       [32]byte    `json:"prev_block_hash"`
	EventIDs            []uuid.UUID `json:"event_ids"`
	ProposerSignature   []byte      `json:"proposer_signature,omitempty"`
	ValidatorSignatures [][]byte    `json:"validator_signatures,omitempty"`
	FinalizedAt         time.Time   `json:"finalized_at"`
}
