package transport

import "github.com/pairdb/hintmgr/internal/model"

// HintEnvelope is the wire message carrying a single hint row to a peer for
// replay.
type HintEnvelope struct {
	Key           model.HintKey
	MutationBytes []byte
}

// Ack is the peer's response to a delivered HintEnvelope.
type Ack struct {
	Key      model.HintKey
	Accepted bool
	Reason   string // populated when Accepted is false
}
