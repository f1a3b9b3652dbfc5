package rpc

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"ndxgov/core/events"
	"ndxgov/core/types"
	"ndxgov/indexer"
	"ndxgov/native/governance"
)

// Amounts are rendered as decimal strings so 256-bit values survive JSON.

type BalanceResult struct {
	Address string `json:"address"`
	Token   string `json:"token"`
	Balance string `json:"balance"`
	Native  string `json:"native"`
	Nonce   uint64 `json:"nonce"`
}

type VotesResult struct {
	Address  string `json:"address"`
	Delegate string `json:"delegate"`
	Votes    string `json:"votes"`
	Block    uint64 `json:"block,omitempty"`
}

type ActionResult struct {
	Target    string `json:"target"`
	Value     string `json:"value"`
	Signature string `json:"signature"`
	Calldata  string `json:"calldata"`
}

type ProposalResult struct {
	ID           uint64         `json:"id"`
	Proposer     string         `json:"proposer"`
	State        string         `json:"state"`
	Eta          uint64         `json:"eta"`
	StartBlock   uint64         `json:"startBlock"`
	EndBlock     uint64         `json:"endBlock"`
	ForVotes     string         `json:"forVotes"`
	AgainstVotes string         `json:"againstVotes"`
	Canceled     bool           `json:"canceled"`
	Executed     bool           `json:"executed"`
	Actions      []ActionResult `json:"actions"`
}

type ReceiptResult struct {
	HasVoted bool   `json:"hasVoted"`
	Support  bool   `json:"support"`
	Votes    string `json:"votes"`
}

type MetaStateResult struct {
	ID            uint64 `json:"id"`
	State         string `json:"state"`
	Mirrored      bool   `json:"mirrored"`
	StartBlock    uint64 `json:"startBlock"`
	EndBlock      uint64 `json:"endBlock"`
	ForVotes      string `json:"forVotes"`
	AgainstVotes  string `json:"againstVotes"`
	VoteSubmitted bool   `json:"voteSubmitted"`
}

type PoolResult struct {
	StakingToken   string `json:"stakingToken"`
	StakingRewards string `json:"stakingRewards"`
	TokenType      string `json:"tokenType"`
	PendingReward  string `json:"pendingReward"`
	Duration       uint64 `json:"duration"`
	PeriodFinish   uint64 `json:"periodFinish"`
	RewardRate     string `json:"rewardRate"`
	RewardPerToken string `json:"rewardPerToken"`
	TotalSupply    string `json:"totalSupply"`
}

type EarnedResult struct {
	Account string `json:"account"`
	Staked  string `json:"staked"`
	Earned  string `json:"earned"`
}

type VesterResult struct {
	Address    string `json:"address"`
	Kind       string `json:"kind"`
	Token      string `json:"token"`
	Recipient  string `json:"recipient"`
	Amount     string `json:"amount"`
	Begin      uint64 `json:"begin"`
	Cliff      uint64 `json:"cliff"`
	End        uint64 `json:"end"`
	LastUpdate uint64 `json:"lastUpdate"`
	Claimable  string `json:"claimable"`
	Balance    string `json:"balance"`
	Terminator string `json:"terminator,omitempty"`
	Terminated bool   `json:"terminated,omitempty"`
}

type BlockResult struct {
	Height      uint64 `json:"height"`
	Hash        string `json:"hash"`
	ParentHash  string `json:"parentHash"`
	StateDigest string `json:"stateDigest"`
	Timestamp   uint64 `json:"timestamp"`
	TxCount     uint64 `json:"txCount"`
}

type EventResult struct {
	Block      uint64            `json:"block"`
	Time       uint64            `json:"time"`
	Type       string            `json:"type"`
	Module     string            `json:"module"`
	Address    string            `json:"address"`
	Attributes map[string]string `json:"attributes"`
}

type SendResult struct {
	Hash    string `json:"hash"`
	From    string `json:"from"`
	Height  uint64 `json:"height"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Logs    int    `json:"logs"`
}

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func hash32(h [32]byte) string {
	return "0x" + hex.EncodeToString(h[:])
}

func proposalResult(p *governance.Proposal, state governance.ProposalState) ProposalResult {
	out := ProposalResult{
		ID:           p.ID,
		Proposer:     p.Proposer.String(),
		State:        state.String(),
		Eta:          p.Eta,
		StartBlock:   p.StartBlock,
		EndBlock:     p.EndBlock,
		ForVotes:     amount(p.ForVotes),
		AgainstVotes: amount(p.AgainstVotes),
		Canceled:     p.Canceled,
		Executed:     p.Executed,
		Actions:      make([]ActionResult, len(p.Targets)),
	}
	for i := range p.Targets {
		out.Actions[i] = ActionResult{
			Target:    p.Targets[i].String(),
			Value:     amount(p.Values[i]),
			Signature: p.Signatures[i],
			Calldata:  "0x" + hex.EncodeToString(p.Calldatas[i]),
		}
	}
	return out
}

func blockResult(h *types.Header) (BlockResult, error) {
	digest, err := h.Hash()
	if err != nil {
		return BlockResult{}, err
	}
	return BlockResult{
		Height:      h.Height,
		Hash:        hash32(digest),
		ParentHash:  hash32(h.ParentHash),
		StateDigest: hash32(h.StateDigest),
		Timestamp:   h.Timestamp,
		TxCount:     h.TxCount,
	}, nil
}

func eventFromLog(log events.Log) EventResult {
	attrs := log.Event.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	return EventResult{
		Block:      log.Height,
		Time:       log.Timestamp,
		Type:       log.Event.Type,
		Module:     log.Event.Module(),
		Address:    log.Contract.String(),
		Attributes: attrs,
	}
}

func eventFromRecord(rec indexer.EventRecord) (EventResult, error) {
	attrs, err := rec.Attrs()
	if err != nil {
		return EventResult{}, fmt.Errorf("decode attributes of %s: %w", rec.ID, err)
	}
	if attrs == nil {
		attrs = map[string]string{}
	}
	return EventResult{
		Block:      rec.Block,
		Time:       uint64(rec.Time.Unix()),
		Type:       rec.Type,
		Module:     rec.Module,
		Address:    rec.Address,
		Attributes: attrs,
	}, nil
}
