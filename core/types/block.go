package types

import (
	"github.com/ethereum/go-ethereum/rlp"
	"lukechampine.com/blake3"
)

// Header seals one block of committed transitions.
type Header struct {
	Height      uint64   `json:"height"`
	Timestamp   uint64   `json:"timestamp"`
	ParentHash  [32]byte `json:"parentHash"`
	StateDigest [32]byte `json:"stateDigest"`
	TxCount     uint64   `json:"txCount"`
}

// Hash is the BLAKE3 digest of the RLP encoded header.
func (h *Header) Hash() ([32]byte, error) {
	encoded, err := rlp.EncodeToBytes(h)
	if err != nil {
		return [32]byte{}, err
	}
	return blake3.Sum256(encoded), nil
}

// Receipt reports the outcome of an applied transaction.
type Receipt struct {
	TxHash  [32]byte `json:"txHash"`
	From    string   `json:"from"`
	Height  uint64   `json:"height"`
	Success bool     `json:"success"`
	Error   string   `json:"error,omitempty"`
	Logs    int      `json:"logs"`
}
