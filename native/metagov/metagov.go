// Package metagov lets Ndx holders steer the vote the bridge casts in an
// external GovernorAlpha. Holders vote on a mirror of each external proposal
// whose window closes votingGracePeriod blocks before the external one; the
// result is then submitted once as a single external vote.
package metagov

import (
	"errors"
	"fmt"
	"math/big"

	"ndxgov/core/chain"
	"ndxgov/crypto"
	nativecommon "ndxgov/native/common"
	"ndxgov/native/governance"
	"ndxgov/native/token"
)

const Kind = "metagov.bridge"

const (
	sigCastVote           = "castVote(uint256,bool)"
	sigSubmitExternalVote = "submitExternalVote(uint256)"
	sigExternalCastVote   = "castVote(uint256,bool)"
)

// MetaState is the derived state of a mirrored proposal.
type MetaState uint8

const (
	StateActive MetaState = iota
	StateDefeated
	StateSucceeded
	StateExecuted
)

func (s MetaState) String() string {
	switch s {
	case StateActive:
		return "Active"
	case StateDefeated:
		return "Defeated"
	case StateSucceeded:
		return "Succeeded"
	case StateExecuted:
		return "Executed"
	default:
		return "Unknown"
	}
}

var (
	ErrNotExist            = errors.New("metagov: meta proposal does not exist")
	ErrNotExistOrNotReady  = errors.New("metagov: meta proposal does not exist or is not ready")
	ErrAlreadyVoted        = errors.New("metagov: voter already voted")
	ErrNotActive           = errors.New("metagov: meta proposal not active")
	ErrNotReadyToSubmit    = errors.New("metagov: proposal must be in succeeded or defeated state to submit")
	ErrGracePeriodTooLarge = errors.New("metagov: voting grace period exceeds external voting period")
)

// MetaProposal mirrors one external proposal.
type MetaProposal struct {
	StartBlock    uint64
	EndBlock      uint64
	ForVotes      *big.Int
	AgainstVotes  *big.Int
	VoteSubmitted bool
}

type Receipt struct {
	HasVoted bool
	Support  bool
	Votes    *big.Int
}

type config struct {
	Ndx               crypto.Address
	ExternalGovernor  crypto.Address
	VotingGracePeriod uint64
}

// Bridge is a handle on a deployed meta governor.
type Bridge struct {
	addr crypto.Address
}

func At(addr crypto.Address) *Bridge { return &Bridge{addr: addr} }

func Register(c *chain.Chain) {
	c.Register(Kind, func(addr crypto.Address) chain.Contract { return At(addr) })
}

func (b *Bridge) Address() crypto.Address { return b.addr }

// Deploy creates a bridge weighting votes by ndx and voting in external.
func Deploy(ctx *chain.Context, addr, ndx, external crypto.Address, votingGracePeriod uint64) (*Bridge, error) {
	if err := ctx.RequireKind(ndx, token.Kind); err != nil {
		return nil, err
	}
	if err := ctx.RequireKind(external, governance.Kind); err != nil {
		return nil, err
	}
	period, err := governance.At(external).VotingPeriod(ctx)
	if err != nil {
		return nil, err
	}
	if votingGracePeriod >= period {
		return nil, ErrGracePeriodTooLarge
	}
	if err := ctx.Deploy(addr, Kind); err != nil {
		return nil, err
	}
	b := At(addr)
	cfg := config{Ndx: ndx, ExternalGovernor: external, VotingGracePeriod: votingGracePeriod}
	if err := ctx.State().KVPut(b.key("config"), &cfg); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bridge) key(field string, parts ...[]byte) []byte {
	return nativecommon.Key(b.addr, field, parts...)
}

func (b *Bridge) config(ctx *chain.Context) (config, error) {
	var cfg config
	_, err := ctx.State().KVGet(b.key("config"), &cfg)
	return cfg, err
}

func (b *Bridge) ExternalGovernor(ctx *chain.Context) (crypto.Address, error) {
	cfg, err := b.config(ctx)
	return cfg.ExternalGovernor, err
}

func (b *Bridge) VotingGracePeriod(ctx *chain.Context) (uint64, error) {
	cfg, err := b.config(ctx)
	return cfg.VotingGracePeriod, err
}

// Proposal returns the stored mirror of id. ok is false until the first vote
// materialises it.
func (b *Bridge) Proposal(ctx *chain.Context, id uint64) (MetaProposal, bool, error) {
	var p MetaProposal
	ok, err := ctx.State().KVGet(b.key("proposal", nativecommon.Uint64Bytes(id)), &p)
	if err != nil || !ok {
		return MetaProposal{ForVotes: new(big.Int), AgainstVotes: new(big.Int)}, false, err
	}
	return p, true, nil
}

func (b *Bridge) GetReceipt(ctx *chain.Context, id uint64, voter crypto.Address) (Receipt, error) {
	r := Receipt{Votes: new(big.Int)}
	if _, err := ctx.State().KVGet(b.key("receipt", nativecommon.Uint64Bytes(id), voter.Bytes()), &r); err != nil {
		return Receipt{}, err
	}
	return r, nil
}

// mirror returns the stored proposal or, when the external proposal has
// started, a fresh mirror of it. Before the external start block prior votes
// are not determinable, so the proposal is not ready.
func (b *Bridge) mirror(ctx *chain.Context, id uint64) (MetaProposal, bool, error) {
	p, ok, err := b.Proposal(ctx, id)
	if err != nil || ok {
		return p, ok, err
	}
	cfg, err := b.config(ctx)
	if err != nil {
		return p, false, err
	}
	ext, err := governance.At(cfg.ExternalGovernor).Proposal(ctx, id)
	if errors.Is(err, governance.ErrInvalidProposalID) {
		return p, false, ErrNotExistOrNotReady
	}
	if err != nil {
		return p, false, err
	}
	if ctx.BlockNumber() <= ext.StartBlock || ext.EndBlock < ext.StartBlock+cfg.VotingGracePeriod {
		return p, false, ErrNotExistOrNotReady
	}
	return MetaProposal{
		StartBlock:   ext.StartBlock,
		EndBlock:     ext.EndBlock - cfg.VotingGracePeriod,
		ForVotes:     new(big.Int),
		AgainstVotes: new(big.Int),
	}, false, nil
}

func (p MetaProposal) state(block uint64) MetaState {
	switch {
	case p.VoteSubmitted:
		return StateExecuted
	case block < p.EndBlock:
		return StateActive
	case p.ForVotes.Cmp(p.AgainstVotes) > 0:
		return StateSucceeded
	default:
		return StateDefeated
	}
}

// State reports the state of id, mirroring the external proposal if nobody
// has voted on it yet.
func (b *Bridge) State(ctx *chain.Context, id uint64) (MetaState, error) {
	p, _, err := b.mirror(ctx, id)
	if err != nil {
		return 0, err
	}
	return p.state(ctx.BlockNumber()), nil
}

func (b *Bridge) CastVote(ctx *chain.Context, id uint64, support bool) error {
	return ctx.Invoke(b.addr, sigCastVote, id, support)
}

func (b *Bridge) SubmitExternalVote(ctx *chain.Context, id uint64) error {
	return ctx.Invoke(b.addr, sigSubmitExternalVote, id)
}

func (b *Bridge) castVote(ctx *chain.Context, voter crypto.Address, id uint64, support bool) error {
	p, _, err := b.mirror(ctx, id)
	if err != nil {
		return err
	}
	block := ctx.BlockNumber()
	if block <= p.StartBlock || p.state(block) != StateActive {
		return ErrNotActive
	}
	receipt, err := b.GetReceipt(ctx, id, voter)
	if err != nil {
		return err
	}
	if receipt.HasVoted {
		return ErrAlreadyVoted
	}
	cfg, err := b.config(ctx)
	if err != nil {
		return err
	}
	votes, err := token.At(cfg.Ndx).GetPriorVotes(ctx, voter, p.StartBlock)
	if err != nil {
		return err
	}
	if support {
		p.ForVotes.Add(p.ForVotes, votes)
	} else {
		p.AgainstVotes.Add(p.AgainstVotes, votes)
	}
	st := ctx.State()
	if err := st.KVPut(b.key("proposal", nativecommon.Uint64Bytes(id)), &p); err != nil {
		return err
	}
	receipt = Receipt{HasVoted: true, Support: support, Votes: votes}
	if err := st.KVPut(b.key("receipt", nativecommon.Uint64Bytes(id), voter.Bytes()), &receipt); err != nil {
		return err
	}
	ctx.Emit(voteCast(voter, id, support, votes))
	return nil
}

func (b *Bridge) submitExternalVote(ctx *chain.Context, id uint64) error {
	p, ok, err := b.Proposal(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotExist
	}
	state := p.state(ctx.BlockNumber())
	if state != StateSucceeded && state != StateDefeated {
		return fmt.Errorf("%w: proposal is %s", ErrNotReadyToSubmit, state)
	}
	support := state == StateSucceeded
	p.VoteSubmitted = true
	if err := ctx.State().KVPut(b.key("proposal", nativecommon.Uint64Bytes(id)), &p); err != nil {
		return err
	}
	cfg, err := b.config(ctx)
	if err != nil {
		return err
	}
	if err := ctx.Invoke(cfg.ExternalGovernor, sigExternalCastVote, id, support); err != nil {
		return err
	}
	ctx.Emit(externalVoteSubmitted(id, support))
	return nil
}

// Invoke implements chain.Contract.
func (b *Bridge) Invoke(ctx *chain.Context, method string, args chain.Args) error {
	switch method {
	case sigCastVote:
		id, err := args.Uint64(0)
		if err != nil {
			return err
		}
		support, err := args.Bool(1)
		if err != nil {
			return err
		}
		return b.castVote(ctx, ctx.Caller(), id, support)
	case sigSubmitExternalVote:
		id, err := args.Uint64(0)
		if err != nil {
			return err
		}
		return b.submitExternalVote(ctx, id)
	}
	return fmt.Errorf("%w: %s", chain.ErrUnknownMethod, method)
}
