package governance

import (
	"math/big"

	"ndxgov/crypto"
)

// ProposalState is derived from a proposal's stored fields and the current
// block; it is never persisted.
type ProposalState uint8

const (
	StatePending ProposalState = iota
	StateActive
	StateCanceled
	StateDefeated
	StateSucceeded
	StateQueued
	StateExpired
	StateExecuted
)

func (s ProposalState) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateActive:
		return "Active"
	case StateCanceled:
		return "Canceled"
	case StateDefeated:
		return "Defeated"
	case StateSucceeded:
		return "Succeeded"
	case StateQueued:
		return "Queued"
	case StateExpired:
		return "Expired"
	case StateExecuted:
		return "Executed"
	default:
		return "Unknown"
	}
}

// Proposal is the stored record of a governance proposal.
type Proposal struct {
	ID           uint64
	Proposer     crypto.Address
	Eta          uint64
	Targets      []crypto.Address
	Values       []*big.Int
	Signatures   []string
	Calldatas    [][]byte
	StartBlock   uint64
	EndBlock     uint64
	ForVotes     *big.Int
	AgainstVotes *big.Int
	Canceled     bool
	Executed     bool
}

// Receipt records a voter's ballot on one proposal.
type Receipt struct {
	HasVoted bool
	Support  bool
	Votes    *big.Int
}

// Params are fixed at deploy. VotingPeriod is the initial period; it can be
// switched once to PermanentVotingPeriod after PermanentVotingPeriodAfter.
type Params struct {
	Quorum                     *big.Int
	ProposalThreshold          *big.Int
	MaxOperations              uint64
	VotingDelay                uint64
	VotingPeriod               uint64
	PermanentVotingPeriod      uint64
	PermanentVotingPeriodAfter uint64
	Guardian                   crypto.Address
}

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

// DefaultParams mirrors the deployed governor: 400k quorum, 100k proposal
// threshold, ten actions, a one block delay and a 40,320 block initial
// voting period that later drops to 17,280 blocks.
func DefaultParams(permanentAfter uint64) Params {
	return Params{
		Quorum:                     tokens(400_000),
		ProposalThreshold:          tokens(100_000),
		MaxOperations:              10,
		VotingDelay:                1,
		VotingPeriod:               40_320,
		PermanentVotingPeriod:      17_280,
		PermanentVotingPeriodAfter: permanentAfter,
	}
}
