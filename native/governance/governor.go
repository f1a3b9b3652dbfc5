// Package governance implements GovernorAlpha: token-weighted proposals whose
// actions run through a timelock once they pass.
package governance

import (
	"errors"
	"fmt"
	"math/big"

	"ndxgov/core/chain"
	"ndxgov/crypto"
	nativecommon "ndxgov/native/common"
	"ndxgov/native/timelock"
	"ndxgov/native/token"
)

const (
	Kind       = "governor.alpha"
	DomainName = "Indexed Governor Alpha"
)

var BallotTypeHash = crypto.TypeHash("Ballot(uint256 proposalId,bool support)")

var (
	ErrBelowThreshold       = errors.New("governance: proposer votes below proposal threshold")
	ErrArityMismatch        = errors.New("governance: proposal function information arity mismatch")
	ErrNoActions            = errors.New("governance: must provide actions")
	ErrTooManyActions       = errors.New("governance: too many actions")
	ErrLiveProposalActive   = errors.New("governance: one live proposal per proposer, found an already active proposal")
	ErrLiveProposalPending  = errors.New("governance: one live proposal per proposer, found an already pending proposal")
	ErrQueueNotSucceeded    = errors.New("governance: proposal can only be queued if it is succeeded")
	ErrActionAlreadyQueued  = errors.New("governance: proposal action already queued at eta")
	ErrExecuteNotQueued     = errors.New("governance: proposal can only be executed if it is queued")
	ErrCancelExecuted       = errors.New("governance: cannot cancel executed proposal")
	ErrCancelFinalized      = errors.New("governance: proposal is already finalized")
	ErrProposerAboveThresh  = errors.New("governance: proposer above threshold")
	ErrInvalidProposalID    = errors.New("governance: invalid proposal id")
	ErrInvalidSignature     = errors.New("governance: invalid ballot signature")
	ErrVotingClosed         = errors.New("governance: voting is closed")
	ErrAlreadyVoted         = errors.New("governance: voter already voted")
	ErrPermanentPeriodEarly = errors.New("governance: setting permanent voting period not allowed yet")
	ErrPermanentPeriodSet   = errors.New("governance: permanent voting period already set")
	ErrInvalidParams        = errors.New("governance: invalid parameters")
)

// Governor is a handle on a deployed governor.
type Governor struct {
	addr crypto.Address
}

func At(addr crypto.Address) *Governor { return &Governor{addr: addr} }

func Register(c *chain.Chain) {
	c.Register(Kind, func(addr crypto.Address) chain.Contract { return At(addr) })
}

func (g *Governor) Address() crypto.Address { return g.addr }

// Deploy creates a governor over votes token ndx that executes through tl.
// The timelock must name the governor as its admin for queued actions to run.
func Deploy(ctx *chain.Context, addr, tl, ndx crypto.Address, params Params) (*Governor, error) {
	if params.Quorum == nil || params.ProposalThreshold == nil || params.MaxOperations == 0 || params.VotingPeriod == 0 {
		return nil, ErrInvalidParams
	}
	if err := ctx.RequireKind(tl, timelock.Kind); err != nil {
		return nil, err
	}
	if err := ctx.RequireKind(ndx, token.Kind); err != nil {
		return nil, err
	}
	if err := ctx.Deploy(addr, Kind); err != nil {
		return nil, err
	}
	g := At(addr)
	st := ctx.State()
	if err := st.KVPut(g.key("params"), &params); err != nil {
		return nil, err
	}
	if err := nativecommon.PutUint64(st, g.key("voting_period"), params.VotingPeriod); err != nil {
		return nil, err
	}
	if err := nativecommon.PutAddress(st, g.key("timelock"), tl); err != nil {
		return nil, err
	}
	if err := nativecommon.PutAddress(st, g.key("ndx"), ndx); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Governor) key(field string, parts ...[]byte) []byte {
	return nativecommon.Key(g.addr, field, parts...)
}

func (g *Governor) Params(ctx *chain.Context) (Params, error) {
	var p Params
	if _, err := ctx.State().KVGet(g.key("params"), &p); err != nil {
		return Params{}, err
	}
	return p, nil
}

func (g *Governor) VotingPeriod(ctx *chain.Context) (uint64, error) {
	return nativecommon.GetUint64(ctx.State(), g.key("voting_period"))
}

func (g *Governor) Timelock(ctx *chain.Context) (*timelock.Timelock, error) {
	addr, err := nativecommon.GetAddress(ctx.State(), g.key("timelock"))
	if err != nil {
		return nil, err
	}
	return timelock.At(addr), nil
}

func (g *Governor) Ndx(ctx *chain.Context) (*token.Token, error) {
	addr, err := nativecommon.GetAddress(ctx.State(), g.key("ndx"))
	if err != nil {
		return nil, err
	}
	return token.At(addr), nil
}

func (g *Governor) ProposalCount(ctx *chain.Context) (uint64, error) {
	return nativecommon.GetUint64(ctx.State(), g.key("proposal_count"))
}

func (g *Governor) LatestProposalID(ctx *chain.Context, proposer crypto.Address) (uint64, error) {
	return nativecommon.GetUint64(ctx.State(), g.key("latest", proposer.Bytes()))
}

// Proposal loads proposal id, failing for ids never assigned.
func (g *Governor) Proposal(ctx *chain.Context, id uint64) (*Proposal, error) {
	var p Proposal
	ok, err := ctx.State().KVGet(g.key("proposal", nativecommon.Uint64Bytes(id)), &p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidProposalID
	}
	return &p, nil
}

func (g *Governor) putProposal(ctx *chain.Context, p *Proposal) error {
	return ctx.State().KVPut(g.key("proposal", nativecommon.Uint64Bytes(p.ID)), p)
}

func (g *Governor) GetReceipt(ctx *chain.Context, id uint64, voter crypto.Address) (Receipt, error) {
	r := Receipt{Votes: new(big.Int)}
	if _, err := ctx.State().KVGet(g.key("receipt", nativecommon.Uint64Bytes(id), voter.Bytes()), &r); err != nil {
		return Receipt{}, err
	}
	if r.Votes == nil {
		r.Votes = new(big.Int)
	}
	return r, nil
}

func (g *Governor) DomainSeparator(ctx *chain.Context) [32]byte {
	return crypto.DomainSeparator(DomainName, ctx.ChainID(), g.addr)
}

// BallotDigest is the typed-data digest a voter signs for castVoteBySig.
func (g *Governor) BallotDigest(ctx *chain.Context, id uint64, support bool) [32]byte {
	structHash := crypto.HashStruct(BallotTypeHash,
		crypto.Uint256Word(new(big.Int).SetUint64(id)),
		crypto.BoolWord(support),
	)
	return crypto.TypedDataDigest(g.DomainSeparator(ctx), structHash)
}

// State derives the lifecycle state of proposal id at the frame's block.
func (g *Governor) State(ctx *chain.Context, id uint64) (ProposalState, error) {
	p, err := g.Proposal(ctx, id)
	if err != nil {
		return 0, err
	}
	return g.state(ctx, p)
}

func (g *Governor) state(ctx *chain.Context, p *Proposal) (ProposalState, error) {
	block := ctx.BlockNumber()
	switch {
	case p.Canceled:
		return StateCanceled, nil
	case block <= p.StartBlock:
		return StatePending, nil
	case block <= p.EndBlock:
		return StateActive, nil
	}
	params, err := g.Params(ctx)
	if err != nil {
		return 0, err
	}
	if p.ForVotes.Cmp(p.AgainstVotes) <= 0 || p.ForVotes.Cmp(params.Quorum) <= 0 {
		return StateDefeated, nil
	}
	if p.Eta == 0 {
		return StateSucceeded, nil
	}
	if p.Executed {
		return StateExecuted, nil
	}
	if ctx.Timestamp() >= p.Eta+timelock.GracePeriod {
		return StateExpired, nil
	}
	return StateQueued, nil
}

// priorVotes reads account's weight at the block before the current one.
func (g *Governor) priorVotes(ctx *chain.Context, account crypto.Address) (*big.Int, error) {
	ndx, err := g.Ndx(ctx)
	if err != nil {
		return nil, err
	}
	if ctx.BlockNumber() == 0 {
		return new(big.Int), nil
	}
	return ndx.GetPriorVotes(ctx, account, ctx.BlockNumber()-1)
}

// Action is one call a proposal makes through the timelock.
type Action struct {
	Target    crypto.Address
	Value     *big.Int
	Signature string
	Calldata  []byte
}

// Actions returns the calls of proposal id.
func (g *Governor) Actions(ctx *chain.Context, id uint64) ([]Action, error) {
	p, err := g.Proposal(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.actions(), nil
}

func (p *Proposal) actions() []Action {
	out := make([]Action, len(p.Targets))
	for i := range p.Targets {
		out[i] = Action{Target: p.Targets[i], Value: p.Values[i], Signature: p.Signatures[i], Calldata: p.Calldatas[i]}
	}
	return out
}

// Caller-frame entry points.

// Propose submits a proposal from the calling frame and returns its id.
func (g *Governor) Propose(ctx *chain.Context, actions []Action, description string) (uint64, error) {
	targets := make([]crypto.Address, len(actions))
	values := make([]*big.Int, len(actions))
	signatures := make([]string, len(actions))
	calldatas := make([][]byte, len(actions))
	for i, a := range actions {
		targets[i] = a.Target
		values[i] = a.Value
		if values[i] == nil {
			values[i] = new(big.Int)
		}
		signatures[i] = a.Signature
		calldatas[i] = a.Calldata
		if calldatas[i] == nil {
			calldatas[i] = []byte{}
		}
	}
	if err := ctx.Invoke(g.addr, sigPropose, targets, values, signatures, calldatas, description); err != nil {
		return 0, err
	}
	return g.LatestProposalID(ctx, ctx.Self())
}

func (g *Governor) CastVote(ctx *chain.Context, id uint64, support bool) error {
	return ctx.Invoke(g.addr, sigCastVote, id, support)
}

func (g *Governor) CastVoteBySig(ctx *chain.Context, id uint64, support bool, v uint8, r, s [32]byte) error {
	return ctx.Invoke(g.addr, sigCastVoteBySig, id, support, v, r, s)
}

func (g *Governor) Queue(ctx *chain.Context, id uint64) error {
	return ctx.Invoke(g.addr, sigQueue, id)
}

// Execute runs a queued proposal. value is forwarded to the governor and from
// there to the timelock with each action.
func (g *Governor) Execute(ctx *chain.Context, id uint64, value *big.Int) error {
	data, err := chain.Pack(sigExecute, id)
	if err != nil {
		return err
	}
	return ctx.Call(g.addr, value, sigExecute, data)
}

func (g *Governor) Cancel(ctx *chain.Context, id uint64) error {
	return ctx.Invoke(g.addr, sigCancel, id)
}

func (g *Governor) SetPermanentVotingPeriod(ctx *chain.Context) error {
	return ctx.Invoke(g.addr, sigSetPermanentVotingPeriod)
}

func (g *Governor) propose(ctx *chain.Context, p *Proposal, description string) error {
	proposer := ctx.Caller()
	params, err := g.Params(ctx)
	if err != nil {
		return err
	}
	votes, err := g.priorVotes(ctx, proposer)
	if err != nil {
		return err
	}
	if votes.Cmp(params.ProposalThreshold) < 0 {
		return ErrBelowThreshold
	}
	n := len(p.Targets)
	if n != len(p.Values) || n != len(p.Signatures) || n != len(p.Calldatas) {
		return ErrArityMismatch
	}
	if n == 0 {
		return ErrNoActions
	}
	if uint64(n) > params.MaxOperations {
		return ErrTooManyActions
	}
	latest, err := g.LatestProposalID(ctx, proposer)
	if err != nil {
		return err
	}
	if latest != 0 {
		state, err := g.State(ctx, latest)
		if err != nil {
			return err
		}
		switch state {
		case StateActive:
			return ErrLiveProposalActive
		case StatePending:
			return ErrLiveProposalPending
		}
	}
	votingPeriod, err := g.VotingPeriod(ctx)
	if err != nil {
		return err
	}
	count, err := g.ProposalCount(ctx)
	if err != nil {
		return err
	}
	p.ID = count + 1
	p.Proposer = proposer
	p.StartBlock = ctx.BlockNumber() + params.VotingDelay
	p.EndBlock = p.StartBlock + votingPeriod
	p.ForVotes = new(big.Int)
	p.AgainstVotes = new(big.Int)

	st := ctx.State()
	if err := nativecommon.PutUint64(st, g.key("proposal_count"), p.ID); err != nil {
		return err
	}
	if err := nativecommon.PutUint64(st, g.key("latest", proposer.Bytes()), p.ID); err != nil {
		return err
	}
	if err := g.putProposal(ctx, p); err != nil {
		return err
	}
	ctx.Emit(proposalCreated(p, description))
	return nil
}

func (g *Governor) castVote(ctx *chain.Context, voter crypto.Address, id uint64, support bool) error {
	p, err := g.Proposal(ctx, id)
	if err != nil {
		return err
	}
	state, err := g.state(ctx, p)
	if err != nil {
		return err
	}
	if state != StateActive {
		return ErrVotingClosed
	}
	receipt, err := g.GetReceipt(ctx, id, voter)
	if err != nil {
		return err
	}
	if receipt.HasVoted {
		return ErrAlreadyVoted
	}
	ndx, err := g.Ndx(ctx)
	if err != nil {
		return err
	}
	votes, err := ndx.GetPriorVotes(ctx, voter, p.StartBlock)
	if err != nil {
		return err
	}
	if support {
		p.ForVotes.Add(p.ForVotes, votes)
	} else {
		p.AgainstVotes.Add(p.AgainstVotes, votes)
	}
	receipt = Receipt{HasVoted: true, Support: support, Votes: votes}
	if err := ctx.State().KVPut(g.key("receipt", nativecommon.Uint64Bytes(id), voter.Bytes()), &receipt); err != nil {
		return err
	}
	if err := g.putProposal(ctx, p); err != nil {
		return err
	}
	ctx.Emit(voteCast(voter, id, support, votes))
	return nil
}

func (g *Governor) castVoteBySig(ctx *chain.Context, id uint64, support bool, v uint8, r, s [32]byte) error {
	signatory, err := crypto.RecoverSigner(g.BallotDigest(ctx, id, support), v, r, s)
	if err != nil || signatory.IsZero() {
		return ErrInvalidSignature
	}
	return g.castVote(ctx, signatory, id, support)
}

func (g *Governor) queue(ctx *chain.Context, id uint64) error {
	p, err := g.Proposal(ctx, id)
	if err != nil {
		return err
	}
	state, err := g.state(ctx, p)
	if err != nil {
		return err
	}
	if state != StateSucceeded {
		return ErrQueueNotSucceeded
	}
	tl, err := g.Timelock(ctx)
	if err != nil {
		return err
	}
	delay, err := tl.Delay(ctx)
	if err != nil {
		return err
	}
	eta := ctx.Timestamp() + delay
	for _, a := range p.actions() {
		hash, err := timelock.TxHash(a.Target, a.Value, a.Signature, a.Calldata, eta)
		if err != nil {
			return err
		}
		queued, err := tl.QueuedTransactions(ctx, hash)
		if err != nil {
			return err
		}
		if queued {
			return ErrActionAlreadyQueued
		}
		if err := tl.QueueTransaction(ctx, a.Target, a.Value, a.Signature, a.Calldata, eta); err != nil {
			return err
		}
	}
	p.Eta = eta
	if err := g.putProposal(ctx, p); err != nil {
		return err
	}
	ctx.Emit(proposalQueued(id, eta))
	return nil
}

func (g *Governor) execute(ctx *chain.Context, id uint64) error {
	p, err := g.Proposal(ctx, id)
	if err != nil {
		return err
	}
	state, err := g.state(ctx, p)
	if err != nil {
		return err
	}
	if state != StateQueued {
		return fmt.Errorf("%w: proposal is %s", ErrExecuteNotQueued, state)
	}
	p.Executed = true
	if err := g.putProposal(ctx, p); err != nil {
		return err
	}
	tl, err := g.Timelock(ctx)
	if err != nil {
		return err
	}
	for i, a := range p.actions() {
		if err := tl.ExecuteTransaction(ctx, a.Target, a.Value, a.Signature, a.Calldata, p.Eta); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	ctx.Emit(proposalExecuted(id))
	return nil
}

func (g *Governor) cancel(ctx *chain.Context, id uint64) error {
	p, err := g.Proposal(ctx, id)
	if err != nil {
		return err
	}
	state, err := g.state(ctx, p)
	if err != nil {
		return err
	}
	switch state {
	case StateExecuted:
		return ErrCancelExecuted
	case StateCanceled, StateDefeated, StateExpired:
		return fmt.Errorf("%w: proposal is %s", ErrCancelFinalized, state)
	}
	params, err := g.Params(ctx)
	if err != nil {
		return err
	}
	caller := ctx.Caller()
	if caller != p.Proposer && (params.Guardian.IsZero() || caller != params.Guardian) {
		votes, err := g.priorVotes(ctx, p.Proposer)
		if err != nil {
			return err
		}
		if votes.Cmp(params.ProposalThreshold) >= 0 {
			return ErrProposerAboveThresh
		}
	}
	p.Canceled = true
	if err := g.putProposal(ctx, p); err != nil {
		return err
	}
	if p.Eta != 0 {
		tl, err := g.Timelock(ctx)
		if err != nil {
			return err
		}
		for _, a := range p.actions() {
			if err := tl.CancelTransaction(ctx, a.Target, a.Value, a.Signature, a.Calldata, p.Eta); err != nil {
				return err
			}
		}
	}
	ctx.Emit(proposalCanceled(id))
	return nil
}

func (g *Governor) setPermanentVotingPeriod(ctx *chain.Context) error {
	params, err := g.Params(ctx)
	if err != nil {
		return err
	}
	if ctx.Timestamp() < params.PermanentVotingPeriodAfter {
		return ErrPermanentPeriodEarly
	}
	st := ctx.State()
	set, err := nativecommon.GetBool(st, g.key("permanent_period_set"))
	if err != nil {
		return err
	}
	if set {
		return ErrPermanentPeriodSet
	}
	if err := nativecommon.PutBool(st, g.key("permanent_period_set"), true); err != nil {
		return err
	}
	if err := nativecommon.PutUint64(st, g.key("voting_period"), params.PermanentVotingPeriod); err != nil {
		return err
	}
	ctx.Emit(votingPeriodChanged(params.PermanentVotingPeriod))
	return nil
}
