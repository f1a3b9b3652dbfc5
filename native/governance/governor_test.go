package governance

import (
	"errors"
	"math/big"
	"testing"

	"ndxgov/core/chain"
	"ndxgov/crypto"
	"ndxgov/native/bank"
	"ndxgov/native/timelock"
	"ndxgov/native/token"
	"ndxgov/storage"
)

const day = 24 * 60 * 60

type fixture struct {
	chain     *chain.Chain
	clock     *chain.ManualClock
	ndx       *token.Token
	tl        *timelock.Timelock
	gov       *Governor
	usd       *bank.Token
	holder    crypto.Address
	recipient crypto.Address
}

func account(name string) crypto.Address {
	return crypto.ContractAddress("account/" + name)
}

func testParams() Params {
	p := DefaultParams(1_700_000_000)
	p.Quorum = big.NewInt(40)
	p.ProposalThreshold = big.NewInt(1_000)
	p.VotingPeriod = 5
	p.PermanentVotingPeriod = 3
	return p
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := chain.NewManualClock(1, 1_600_000_000)
	c, err := chain.New(storage.NewMemDB(), clock)
	if err != nil {
		t.Fatalf("new chain: %v", err)
	}
	token.Register(c)
	timelock.Register(c)
	bank.Register(c)
	Register(c)
	f := &fixture{chain: c, clock: clock, holder: account("A"), recipient: account("recipient")}
	govAddr := crypto.ContractAddress("governor")
	_, now := clock.Now()
	err = c.Execute(f.holder, func(ctx *chain.Context) error {
		var err error
		if f.ndx, err = token.Deploy(ctx, crypto.ContractAddress("ndx"), f.holder, govAddr, now+token.MinimumTimeBetweenMints); err != nil {
			return err
		}
		if f.tl, err = timelock.Deploy(ctx, crypto.ContractAddress("timelock"), govAddr, 2*day); err != nil {
			return err
		}
		if f.gov, err = Deploy(ctx, govAddr, f.tl.Address(), f.ndx.Address(), testParams()); err != nil {
			return err
		}
		if f.usd, err = bank.Deploy(ctx, crypto.ContractAddress("usd"), bank.Metadata{Name: "USD", Symbol: "USD", Decimals: 6}); err != nil {
			return err
		}
		if err := f.usd.TransferOwnership(ctx, f.tl.Address()); err != nil {
			return err
		}
		if err := f.ndx.Transfer(ctx, account("for"), big.NewInt(100)); err != nil {
			return err
		}
		return f.ndx.Transfer(ctx, account("against"), big.NewInt(50))
	})
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	clock.Mine(1)
	return f
}

func (f *fixture) mintAction(amount int64) Action {
	return Action{
		Target:    f.usd.Address(),
		Signature: bank.SigMint,
		Calldata:  chain.MustPack(bank.SigMint, f.recipient, amount),
	}
}

func (f *fixture) propose(t *testing.T, proposer crypto.Address, actions ...Action) uint64 {
	t.Helper()
	var id uint64
	err := f.chain.Execute(proposer, func(ctx *chain.Context) error {
		var err error
		id, err = f.gov.Propose(ctx, actions, "mint usd")
		return err
	})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	return id
}

func (f *fixture) vote(voter crypto.Address, id uint64, support bool) error {
	return f.chain.Execute(voter, func(ctx *chain.Context) error {
		return f.gov.CastVote(ctx, id, support)
	})
}

func (f *fixture) state(t *testing.T, id uint64) ProposalState {
	t.Helper()
	var out ProposalState
	if err := f.chain.View(func(ctx *chain.Context) error {
		var err error
		out, err = f.gov.State(ctx, id)
		return err
	}); err != nil {
		t.Fatalf("state: %v", err)
	}
	return out
}

func (f *fixture) expectState(t *testing.T, id uint64, want ProposalState) {
	t.Helper()
	if got := f.state(t, id); got != want {
		t.Fatalf("proposal %d state %s, want %s", id, got, want)
	}
}

func (f *fixture) now() uint64 {
	_, ts := f.clock.Now()
	return ts
}

// passProposal proposes the mint, votes 100 for and 50 against and mines past
// the end of voting.
func (f *fixture) passProposal(t *testing.T) uint64 {
	t.Helper()
	id := f.propose(t, f.holder, f.mintAction(500))
	f.expectState(t, id, StatePending)
	f.clock.Mine(2)
	f.expectState(t, id, StateActive)
	if err := f.vote(account("for"), id, true); err != nil {
		t.Fatalf("vote for: %v", err)
	}
	if err := f.vote(account("against"), id, false); err != nil {
		t.Fatalf("vote against: %v", err)
	}
	f.clock.Mine(testParams().VotingPeriod)
	f.expectState(t, id, StateSucceeded)
	return id
}

func TestProposalLifecycle(t *testing.T) {
	f := newFixture(t)
	id := f.passProposal(t)

	if err := f.chain.Execute(f.holder, func(ctx *chain.Context) error {
		return f.gov.Queue(ctx, id)
	}); err != nil {
		t.Fatalf("queue: %v", err)
	}
	f.expectState(t, id, StateQueued)

	var eta uint64
	_ = f.chain.View(func(ctx *chain.Context) error {
		p, err := f.gov.Proposal(ctx, id)
		if err != nil {
			t.Fatalf("proposal: %v", err)
		}
		eta = p.Eta
		if p.ForVotes.Int64() != 100 || p.AgainstVotes.Int64() != 50 {
			t.Fatalf("tally for=%s against=%s", p.ForVotes, p.AgainstVotes)
		}
		return nil
	})
	if eta != f.now()+2*day {
		t.Fatalf("eta %d, want now+delay %d", eta, f.now()+2*day)
	}

	execute := func() error {
		return f.chain.Execute(f.holder, func(ctx *chain.Context) error {
			return f.gov.Execute(ctx, id, nil)
		})
	}
	if err := execute(); !errors.Is(err, timelock.ErrNotReady) {
		t.Fatalf("expected not ready before eta, got %v", err)
	}
	f.clock.SetTime(eta)
	if err := execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	f.expectState(t, id, StateExecuted)

	_ = f.chain.View(func(ctx *chain.Context) error {
		bal, _ := f.usd.BalanceOf(ctx, f.recipient)
		if bal.Int64() != 500 {
			t.Fatalf("recipient balance %s, want 500", bal)
		}
		return nil
	})
	if err := execute(); !errors.Is(err, ErrExecuteNotQueued) {
		t.Fatalf("expected ErrExecuteNotQueued, got %v", err)
	}
}

func TestQueuedProposalExpires(t *testing.T) {
	f := newFixture(t)
	id := f.passProposal(t)
	if err := f.chain.Execute(f.holder, func(ctx *chain.Context) error {
		return f.gov.Queue(ctx, id)
	}); err != nil {
		t.Fatalf("queue: %v", err)
	}
	f.clock.SetTime(f.now() + 2*day + timelock.GracePeriod)
	f.expectState(t, id, StateExpired)
	err := f.chain.Execute(f.holder, func(ctx *chain.Context) error {
		return f.gov.Execute(ctx, id, nil)
	})
	if !errors.Is(err, ErrExecuteNotQueued) {
		t.Fatalf("expected ErrExecuteNotQueued, got %v", err)
	}
}

func TestDefeatedBelowQuorum(t *testing.T) {
	f := newFixture(t)
	err := f.chain.Execute(f.holder, func(ctx *chain.Context) error {
		return f.ndx.Transfer(ctx, account("small"), big.NewInt(39))
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	f.clock.Mine(1)
	id := f.propose(t, f.holder, f.mintAction(1))
	f.clock.Mine(2)
	if err := f.vote(account("small"), id, true); err != nil {
		t.Fatalf("vote: %v", err)
	}
	f.clock.Mine(testParams().VotingPeriod)
	f.expectState(t, id, StateDefeated)
	err = f.chain.Execute(f.holder, func(ctx *chain.Context) error {
		return f.gov.Queue(ctx, id)
	})
	if !errors.Is(err, ErrQueueNotSucceeded) {
		t.Fatalf("expected ErrQueueNotSucceeded, got %v", err)
	}
}

func TestDefeatedAtExactQuorum(t *testing.T) {
	f := newFixture(t)
	err := f.chain.Execute(f.holder, func(ctx *chain.Context) error {
		return f.ndx.Transfer(ctx, account("exact"), testParams().Quorum)
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	f.clock.Mine(1)
	id := f.propose(t, f.holder, f.mintAction(1))
	f.clock.Mine(2)
	if err := f.vote(account("exact"), id, true); err != nil {
		t.Fatalf("vote: %v", err)
	}
	f.clock.Mine(testParams().VotingPeriod)
	f.expectState(t, id, StateDefeated)
}

func TestProposeAtExactThreshold(t *testing.T) {
	f := newFixture(t)
	proposer := account("proposer")
	err := f.chain.Execute(f.holder, func(ctx *chain.Context) error {
		return f.ndx.Transfer(ctx, proposer, testParams().ProposalThreshold)
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	f.clock.Mine(1)
	if id := f.propose(t, proposer, f.mintAction(1)); id != 1 {
		t.Fatalf("proposal id %d, want 1", id)
	}
}

func TestProposeRules(t *testing.T) {
	f := newFixture(t)
	err := f.chain.Execute(account("for"), func(ctx *chain.Context) error {
		_, err := f.gov.Propose(ctx, []Action{f.mintAction(1)}, "")
		return err
	})
	if !errors.Is(err, ErrBelowThreshold) {
		t.Fatalf("expected ErrBelowThreshold, got %v", err)
	}
	err = f.chain.Execute(f.holder, func(ctx *chain.Context) error {
		_, err := f.gov.Propose(ctx, nil, "")
		return err
	})
	if !errors.Is(err, ErrNoActions) {
		t.Fatalf("expected ErrNoActions, got %v", err)
	}
	many := make([]Action, 11)
	for i := range many {
		many[i] = f.mintAction(int64(i + 1))
	}
	err = f.chain.Execute(f.holder, func(ctx *chain.Context) error {
		_, err := f.gov.Propose(ctx, many, "")
		return err
	})
	if !errors.Is(err, ErrTooManyActions) {
		t.Fatalf("expected ErrTooManyActions, got %v", err)
	}
	err = f.chain.Execute(f.holder, func(ctx *chain.Context) error {
		return ctx.Invoke(f.gov.Address(), sigPropose,
			[]crypto.Address{f.usd.Address()}, []*big.Int{}, []string{bank.SigMint}, [][]byte{{}}, "")
	})
	if !errors.Is(err, ErrArityMismatch) {
		t.Fatalf("expected ErrArityMismatch, got %v", err)
	}

	id := f.propose(t, f.holder, f.mintAction(1))
	if id != 1 {
		t.Fatalf("first proposal id %d, want 1", id)
	}
	err = f.chain.Execute(f.holder, func(ctx *chain.Context) error {
		_, err := f.gov.Propose(ctx, []Action{f.mintAction(2)}, "")
		return err
	})
	if !errors.Is(err, ErrLiveProposalPending) {
		t.Fatalf("expected ErrLiveProposalPending, got %v", err)
	}
	f.clock.Mine(2)
	err = f.chain.Execute(f.holder, func(ctx *chain.Context) error {
		_, err := f.gov.Propose(ctx, []Action{f.mintAction(2)}, "")
		return err
	})
	if !errors.Is(err, ErrLiveProposalActive) {
		t.Fatalf("expected ErrLiveProposalActive, got %v", err)
	}
}

func TestCastVoteRules(t *testing.T) {
	f := newFixture(t)
	id := f.propose(t, f.holder, f.mintAction(1))
	if err := f.vote(account("for"), id, true); !errors.Is(err, ErrVotingClosed) {
		t.Fatalf("expected ErrVotingClosed while pending, got %v", err)
	}
	f.clock.Mine(2)
	if err := f.vote(account("for"), id, true); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if err := f.vote(account("for"), id, false); !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted, got %v", err)
	}

	// Weight is fixed at startBlock: tokens received later do not count.
	if err := f.chain.Execute(f.holder, func(ctx *chain.Context) error {
		return f.ndx.Transfer(ctx, account("late"), big.NewInt(1_000))
	}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := f.vote(account("late"), id, true); err != nil {
		t.Fatalf("late vote: %v", err)
	}
	_ = f.chain.View(func(ctx *chain.Context) error {
		r, _ := f.gov.GetReceipt(ctx, id, account("late"))
		if !r.HasVoted || r.Votes.Sign() != 0 {
			t.Fatalf("late receipt %+v", r)
		}
		return nil
	})

	f.clock.Mine(testParams().VotingPeriod)
	if err := f.vote(account("against"), id, false); !errors.Is(err, ErrVotingClosed) {
		t.Fatalf("expected ErrVotingClosed after end, got %v", err)
	}
}

func TestCastVoteBySig(t *testing.T) {
	f := newFixture(t)
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	if err := f.chain.Execute(f.holder, func(ctx *chain.Context) error {
		return f.ndx.Transfer(ctx, key.Address(), big.NewInt(77))
	}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	f.clock.Mine(1)
	id := f.propose(t, f.holder, f.mintAction(1))
	f.clock.Mine(2)

	var digest [32]byte
	_ = f.chain.View(func(ctx *chain.Context) error {
		digest = f.gov.BallotDigest(ctx, id, true)
		return nil
	})
	v, r, s, err := crypto.SignDigest(key, digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	relayer := account("relayer")
	if err := f.chain.Execute(relayer, func(ctx *chain.Context) error {
		return f.gov.CastVoteBySig(ctx, id, true, v, r, s)
	}); err != nil {
		t.Fatalf("castVoteBySig: %v", err)
	}
	_ = f.chain.View(func(ctx *chain.Context) error {
		receipt, _ := f.gov.GetReceipt(ctx, id, key.Address())
		if !receipt.HasVoted || !receipt.Support || receipt.Votes.Int64() != 77 {
			t.Fatalf("signer receipt %+v", receipt)
		}
		relayed, _ := f.gov.GetReceipt(ctx, id, relayer)
		if relayed.HasVoted {
			t.Fatalf("relayer must not be recorded as voter")
		}
		return nil
	})

	err = f.chain.Execute(relayer, func(ctx *chain.Context) error {
		return f.gov.CastVoteBySig(ctx, id, true, v, r, s)
	})
	if !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted on replay, got %v", err)
	}
}

func TestCancelClearsTimelock(t *testing.T) {
	f := newFixture(t)
	id := f.passProposal(t)
	if err := f.chain.Execute(f.holder, func(ctx *chain.Context) error {
		return f.gov.Queue(ctx, id)
	}); err != nil {
		t.Fatalf("queue: %v", err)
	}

	err := f.chain.Execute(account("for"), func(ctx *chain.Context) error {
		return f.gov.Cancel(ctx, id)
	})
	if !errors.Is(err, ErrProposerAboveThresh) {
		t.Fatalf("expected ErrProposerAboveThresh, got %v", err)
	}
	if err := f.chain.Execute(f.holder, func(ctx *chain.Context) error {
		return f.gov.Cancel(ctx, id)
	}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	f.expectState(t, id, StateCanceled)

	_ = f.chain.View(func(ctx *chain.Context) error {
		p, _ := f.gov.Proposal(ctx, id)
		a := p.actions()[0]
		hash, _ := timelock.TxHash(a.Target, a.Value, a.Signature, a.Calldata, p.Eta)
		queued, _ := f.tl.QueuedTransactions(ctx, hash)
		if queued {
			t.Fatalf("canceled proposal left its action queued")
		}
		return nil
	})
	err = f.chain.Execute(f.holder, func(ctx *chain.Context) error {
		return f.gov.Cancel(ctx, id)
	})
	if !errors.Is(err, ErrCancelFinalized) {
		t.Fatalf("expected ErrCancelFinalized, got %v", err)
	}
}

func TestCancelWhenProposerDropsBelowThreshold(t *testing.T) {
	f := newFixture(t)
	id := f.propose(t, f.holder, f.mintAction(1))
	if err := f.chain.Execute(f.holder, func(ctx *chain.Context) error {
		return f.ndx.Delegate(ctx, account("elsewhere"))
	}); err != nil {
		t.Fatalf("delegate: %v", err)
	}
	f.clock.Mine(1)
	if err := f.chain.Execute(account("anyone"), func(ctx *chain.Context) error {
		return f.gov.Cancel(ctx, id)
	}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	f.expectState(t, id, StateCanceled)
}

func TestDuplicateActionsCannotQueue(t *testing.T) {
	f := newFixture(t)
	id := f.propose(t, f.holder, f.mintAction(5), f.mintAction(5))
	f.clock.Mine(2)
	if err := f.vote(account("for"), id, true); err != nil {
		t.Fatalf("vote: %v", err)
	}
	f.clock.Mine(testParams().VotingPeriod)
	err := f.chain.Execute(f.holder, func(ctx *chain.Context) error {
		return f.gov.Queue(ctx, id)
	})
	if !errors.Is(err, ErrActionAlreadyQueued) {
		t.Fatalf("expected ErrActionAlreadyQueued, got %v", err)
	}
}

func TestSetPermanentVotingPeriod(t *testing.T) {
	f := newFixture(t)
	call := func() error {
		return f.chain.Execute(account("anyone"), func(ctx *chain.Context) error {
			return f.gov.SetPermanentVotingPeriod(ctx)
		})
	}
	if err := call(); !errors.Is(err, ErrPermanentPeriodEarly) {
		t.Fatalf("expected ErrPermanentPeriodEarly, got %v", err)
	}
	f.clock.SetTime(testParams().PermanentVotingPeriodAfter)
	if err := call(); err != nil {
		t.Fatalf("setPermanentVotingPeriod: %v", err)
	}
	if err := call(); !errors.Is(err, ErrPermanentPeriodSet) {
		t.Fatalf("expected ErrPermanentPeriodSet, got %v", err)
	}
	id := f.propose(t, f.holder, f.mintAction(1))
	_ = f.chain.View(func(ctx *chain.Context) error {
		p, _ := f.gov.Proposal(ctx, id)
		if p.EndBlock-p.StartBlock != testParams().PermanentVotingPeriod {
			t.Fatalf("voting period %d, want %d", p.EndBlock-p.StartBlock, testParams().PermanentVotingPeriod)
		}
		return nil
	})
}

func TestStateRejectsUnknownProposal(t *testing.T) {
	f := newFixture(t)
	err := f.chain.View(func(ctx *chain.Context) error {
		_, err := f.gov.State(ctx, 1)
		return err
	})
	if !errors.Is(err, ErrInvalidProposalID) {
		t.Fatalf("expected ErrInvalidProposalID, got %v", err)
	}
}
