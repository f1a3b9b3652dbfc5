package token

import (
	"errors"
	"math"
	"math/big"

	"ndxgov/core/chain"
	"ndxgov/crypto"
	nativecommon "ndxgov/native/common"
)

var (
	ErrNotYetDetermined  = errors.New("token: prior votes not yet determined")
	ErrVoteUnderflow     = errors.New("token: vote amount underflows")
	ErrVoteOverflow      = errors.New("token: vote amount overflows")
	ErrBlockNumberTooBig = errors.New("token: block number exceeds 32 bits")
)

// Checkpoint records the votes of a delegatee from a given block onwards.
type Checkpoint struct {
	FromBlock uint64
	Votes     *big.Int
}

// delegation distinguishes "never delegated" (weight counts toward the
// holder) from an explicit choice, including delegating to nobody.
type delegation struct {
	Delegatee crypto.Address
	Set       bool
}

// Delegates returns the account owner's balance currently counts toward. A
// holder that never delegated counts toward itself; the zero address means
// the holder's weight is not counted anywhere.
func (t *Token) Delegates(ctx *chain.Context, owner crypto.Address) (crypto.Address, error) {
	var rec delegation
	ok, err := ctx.State().KVGet(t.key("delegate", owner.Bytes()), &rec)
	if err != nil {
		return crypto.Address{}, err
	}
	if !ok || !rec.Set {
		return owner, nil
	}
	return rec.Delegatee, nil
}

func (t *Token) NumCheckpoints(ctx *chain.Context, account crypto.Address) (uint64, error) {
	return nativecommon.GetUint64(ctx.State(), t.key("checkpoints", account.Bytes()))
}

// CheckpointAt returns checkpoint i of account.
func (t *Token) CheckpointAt(ctx *chain.Context, account crypto.Address, i uint64) (Checkpoint, error) {
	cp := Checkpoint{Votes: new(big.Int)}
	_, err := ctx.State().KVGet(t.key("checkpoint", account.Bytes(), nativecommon.Uint64Bytes(i)), &cp)
	if cp.Votes == nil {
		cp.Votes = new(big.Int)
	}
	return cp, err
}

// GetCurrentVotes returns the votes of account as of its latest checkpoint.
func (t *Token) GetCurrentVotes(ctx *chain.Context, account crypto.Address) (*big.Int, error) {
	n, err := t.NumCheckpoints(ctx, account)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return new(big.Int), nil
	}
	cp, err := t.CheckpointAt(ctx, account, n-1)
	if err != nil {
		return nil, err
	}
	return cp.Votes, nil
}

// GetPriorVotes returns the votes of account at the end of blockNumber, which
// must already be final.
func (t *Token) GetPriorVotes(ctx *chain.Context, account crypto.Address, blockNumber uint64) (*big.Int, error) {
	if blockNumber >= ctx.BlockNumber() {
		return nil, ErrNotYetDetermined
	}
	n, err := t.NumCheckpoints(ctx, account)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return new(big.Int), nil
	}
	latest, err := t.CheckpointAt(ctx, account, n-1)
	if err != nil {
		return nil, err
	}
	if latest.FromBlock <= blockNumber {
		return latest.Votes, nil
	}
	first, err := t.CheckpointAt(ctx, account, 0)
	if err != nil {
		return nil, err
	}
	if first.FromBlock > blockNumber {
		return new(big.Int), nil
	}

	lower, upper := uint64(0), n-1
	for upper > lower {
		center := upper - (upper-lower)/2
		cp, err := t.CheckpointAt(ctx, account, center)
		if err != nil {
			return nil, err
		}
		switch {
		case cp.FromBlock == blockNumber:
			return cp.Votes, nil
		case cp.FromBlock < blockNumber:
			lower = center
		default:
			upper = center - 1
		}
	}
	cp, err := t.CheckpointAt(ctx, account, lower)
	if err != nil {
		return nil, err
	}
	return cp.Votes, nil
}

// delegate runs in the token frame on behalf of delegator.
func (t *Token) delegate(ctx *chain.Context, delegator, delegatee crypto.Address) error {
	current, err := t.Delegates(ctx, delegator)
	if err != nil {
		return err
	}
	balance, err := t.BalanceOf(ctx, delegator)
	if err != nil {
		return err
	}
	if err := ctx.State().KVPut(t.key("delegate", delegator.Bytes()), &delegation{Delegatee: delegatee, Set: true}); err != nil {
		return err
	}
	ctx.Emit(delegateChanged(delegator, current, delegatee))
	return t.moveDelegates(ctx, current, delegatee, balance)
}

func (t *Token) moveDelegates(ctx *chain.Context, src, dst crypto.Address, amount *big.Int) error {
	if src == dst || amount.Sign() == 0 {
		return nil
	}
	if !src.IsZero() {
		old, err := t.GetCurrentVotes(ctx, src)
		if err != nil {
			return err
		}
		if old.Cmp(amount) < 0 {
			return ErrVoteUnderflow
		}
		if err := t.writeCheckpoint(ctx, src, old, new(big.Int).Sub(old, amount)); err != nil {
			return err
		}
	}
	if !dst.IsZero() {
		old, err := t.GetCurrentVotes(ctx, dst)
		if err != nil {
			return err
		}
		next := new(big.Int).Add(old, amount)
		if next.Cmp(maxUint96) > 0 {
			return ErrVoteOverflow
		}
		if err := t.writeCheckpoint(ctx, dst, old, next); err != nil {
			return err
		}
	}
	return nil
}

// writeCheckpoint overwrites the latest checkpoint when it was written in the
// current block so storage grows by at most one entry per block.
func (t *Token) writeCheckpoint(ctx *chain.Context, delegatee crypto.Address, oldVotes, newVotes *big.Int) error {
	block := ctx.BlockNumber()
	if block > math.MaxUint32 {
		return ErrBlockNumberTooBig
	}
	st := ctx.State()
	n, err := t.NumCheckpoints(ctx, delegatee)
	if err != nil {
		return err
	}
	if n > 0 {
		latest, err := t.CheckpointAt(ctx, delegatee, n-1)
		if err != nil {
			return err
		}
		if latest.FromBlock == block {
			latest.Votes = newVotes
			if err := st.KVPut(t.key("checkpoint", delegatee.Bytes(), nativecommon.Uint64Bytes(n-1)), &latest); err != nil {
				return err
			}
			ctx.Emit(delegateVotesChanged(delegatee, oldVotes, newVotes))
			return nil
		}
	}
	cp := &Checkpoint{FromBlock: block, Votes: newVotes}
	if err := st.KVPut(t.key("checkpoint", delegatee.Bytes(), nativecommon.Uint64Bytes(n)), cp); err != nil {
		return err
	}
	if err := nativecommon.PutUint64(st, t.key("checkpoints", delegatee.Bytes()), n+1); err != nil {
		return err
	}
	ctx.Emit(delegateVotesChanged(delegatee, oldVotes, newVotes))
	return nil
}
