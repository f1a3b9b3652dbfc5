package governance

import (
	"encoding/hex"
	"math/big"
	"strconv"
	"strings"

	"ndxgov/core/events"
	"ndxgov/core/types"
	"ndxgov/crypto"
)

const (
	TypeProposalCreated     = "gov.proposal_created"
	TypeVoteCast            = "gov.vote_cast"
	TypeProposalCanceled    = "gov.proposal_canceled"
	TypeProposalQueued      = "gov.proposal_queued"
	TypeProposalExecuted    = "gov.proposal_executed"
	TypeVotingPeriodChanged = "gov.voting_period_changed"
)

func proposalCreated(p *Proposal, description string) *types.Event {
	targets := make([]string, len(p.Targets))
	values := make([]string, len(p.Values))
	calldatas := make([]string, len(p.Calldatas))
	for i := range p.Targets {
		targets[i] = events.FormatAddress(p.Targets[i])
		values[i] = events.FormatAmount(p.Values[i])
		calldatas[i] = "0x" + hex.EncodeToString(p.Calldatas[i])
	}
	return &types.Event{Type: TypeProposalCreated, Attributes: map[string]string{
		"id":          strconv.FormatUint(p.ID, 10),
		"proposer":    events.FormatAddress(p.Proposer),
		"targets":     strings.Join(targets, ","),
		"values":      strings.Join(values, ","),
		"signatures":  strings.Join(p.Signatures, ";"),
		"calldatas":   strings.Join(calldatas, ","),
		"startBlock":  strconv.FormatUint(p.StartBlock, 10),
		"endBlock":    strconv.FormatUint(p.EndBlock, 10),
		"description": description,
	}}
}

func voteCast(voter crypto.Address, id uint64, support bool, votes *big.Int) *types.Event {
	return &types.Event{Type: TypeVoteCast, Attributes: map[string]string{
		"voter":      events.FormatAddress(voter),
		"proposalId": strconv.FormatUint(id, 10),
		"support":    strconv.FormatBool(support),
		"votes":      events.FormatAmount(votes),
	}}
}

func proposalCanceled(id uint64) *types.Event {
	return &types.Event{Type: TypeProposalCanceled, Attributes: map[string]string{
		"id": strconv.FormatUint(id, 10),
	}}
}

func proposalQueued(id, eta uint64) *types.Event {
	return &types.Event{Type: TypeProposalQueued, Attributes: map[string]string{
		"id":  strconv.FormatUint(id, 10),
		"eta": strconv.FormatUint(eta, 10),
	}}
}

func proposalExecuted(id uint64) *types.Event {
	return &types.Event{Type: TypeProposalExecuted, Attributes: map[string]string{
		"id": strconv.FormatUint(id, 10),
	}}
}

func votingPeriodChanged(period uint64) *types.Event {
	return &types.Event{Type: TypeVotingPeriodChanged, Attributes: map[string]string{
		"votingPeriod": strconv.FormatUint(period, 10),
	}}
}
