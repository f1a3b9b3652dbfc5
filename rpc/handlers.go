package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ndxgov/core/chain"
	"ndxgov/crypto"
	"ndxgov/indexer"
	"ndxgov/native/erc20"
	"ndxgov/native/governance"
	"ndxgov/native/metagov"
	"ndxgov/native/staking"
	"ndxgov/native/token"
	"ndxgov/native/vesting"
	"ndxgov/storage"
)

// view runs fn against committed state, reporting contract errors as
// reverted executions.
func (s *Server) view(fn func(ctx *chain.Context) error) *Error {
	if err := s.chain.View(fn); err != nil {
		var rpcErr *Error
		if errors.As(err, &rpcErr) {
			return rpcErr
		}
		return serverError("execution reverted", err)
	}
	return nil
}

// ndx_getBalance [address, token?]. The token defaults to Ndx.
func (s *Server) getBalance(_ context.Context, params []json.RawMessage) (interface{}, *Error) {
	addr, rpcErr := addressParam(params, 0, "address")
	if rpcErr != nil {
		return nil, rpcErr
	}
	tokenAddr := s.cfg.Addresses.Token
	if len(params) > 1 {
		if tokenAddr, rpcErr = addressParam(params, 1, "token"); rpcErr != nil {
			return nil, rpcErr
		}
	}
	out := BalanceResult{Address: addr.String(), Token: tokenAddr.String()}
	rpcErr = s.view(func(ctx *chain.Context) error {
		balance, err := erc20.BalanceOf(ctx, tokenAddr, addr)
		if err != nil {
			return err
		}
		native, err := ctx.NativeBalance(addr)
		if err != nil {
			return err
		}
		out.Balance, out.Native = amount(balance), amount(native)
		return nil
	})
	if rpcErr != nil {
		return nil, rpcErr
	}
	nonce, err := s.chain.Nonce(addr)
	if err != nil {
		return nil, serverError("failed to load nonce", err)
	}
	out.Nonce = nonce
	return out, nil
}

func (s *Server) getNonce(_ context.Context, params []json.RawMessage) (interface{}, *Error) {
	addr, rpcErr := addressParam(params, 0, "address")
	if rpcErr != nil {
		return nil, rpcErr
	}
	nonce, err := s.chain.Nonce(addr)
	if err != nil {
		return nil, serverError("failed to load nonce", err)
	}
	return nonce, nil
}

func (s *Server) getVotes(_ context.Context, params []json.RawMessage) (interface{}, *Error) {
	addr, rpcErr := addressParam(params, 0, "address")
	if rpcErr != nil {
		return nil, rpcErr
	}
	out := VotesResult{Address: addr.String()}
	rpcErr = s.view(func(ctx *chain.Context) error {
		ndx := token.At(s.cfg.Addresses.Token)
		delegate, err := ndx.Delegates(ctx, addr)
		if err != nil {
			return err
		}
		votes, err := ndx.GetCurrentVotes(ctx, addr)
		if err != nil {
			return err
		}
		out.Delegate, out.Votes = delegate.String(), amount(votes)
		return nil
	})
	if rpcErr != nil {
		return nil, rpcErr
	}
	return out, nil
}

// ndx_getPriorVotes [address, block]
func (s *Server) getPriorVotes(_ context.Context, params []json.RawMessage) (interface{}, *Error) {
	addr, rpcErr := addressParam(params, 0, "address")
	if rpcErr != nil {
		return nil, rpcErr
	}
	block, rpcErr := uint64Param(params, 1, "block")
	if rpcErr != nil {
		return nil, rpcErr
	}
	out := VotesResult{Address: addr.String(), Block: block}
	rpcErr = s.view(func(ctx *chain.Context) error {
		ndx := token.At(s.cfg.Addresses.Token)
		delegate, err := ndx.Delegates(ctx, addr)
		if err != nil {
			return err
		}
		votes, err := ndx.GetPriorVotes(ctx, addr, block)
		if err != nil {
			return err
		}
		out.Delegate, out.Votes = delegate.String(), amount(votes)
		return nil
	})
	if rpcErr != nil {
		return nil, rpcErr
	}
	return out, nil
}

func (s *Server) getProposal(_ context.Context, params []json.RawMessage) (interface{}, *Error) {
	id, rpcErr := uint64Param(params, 0, "proposal id")
	if rpcErr != nil {
		return nil, rpcErr
	}
	var out ProposalResult
	rpcErr = s.view(func(ctx *chain.Context) error {
		gov := governance.At(s.cfg.Addresses.Governor)
		p, err := gov.Proposal(ctx, id)
		if err != nil {
			return err
		}
		state, err := gov.State(ctx, id)
		if err != nil {
			return err
		}
		out = proposalResult(p, state)
		return nil
	})
	if rpcErr != nil {
		return nil, rpcErr
	}
	return out, nil
}

func (s *Server) getProposalState(_ context.Context, params []json.RawMessage) (interface{}, *Error) {
	id, rpcErr := uint64Param(params, 0, "proposal id")
	if rpcErr != nil {
		return nil, rpcErr
	}
	var state governance.ProposalState
	rpcErr = s.view(func(ctx *chain.Context) error {
		var err error
		state, err = governance.At(s.cfg.Addresses.Governor).State(ctx, id)
		return err
	})
	if rpcErr != nil {
		return nil, rpcErr
	}
	return state.String(), nil
}

// ndx_getReceipt [proposalId, voter, "meta"?]. A third parameter of "meta"
// reads the bridge's ballot instead of the governor's.
func (s *Server) getReceipt(_ context.Context, params []json.RawMessage) (interface{}, *Error) {
	id, rpcErr := uint64Param(params, 0, "proposal id")
	if rpcErr != nil {
		return nil, rpcErr
	}
	voter, rpcErr := addressParam(params, 1, "voter")
	if rpcErr != nil {
		return nil, rpcErr
	}
	meta := false
	if len(params) > 2 {
		var scope string
		if err := json.Unmarshal(params[2], &scope); err != nil || (scope != "meta" && scope != "governor") {
			return nil, invalidParams(`scope must be "meta" or "governor"`, err)
		}
		meta = scope == "meta"
	}
	var out ReceiptResult
	rpcErr = s.view(func(ctx *chain.Context) error {
		if meta {
			r, err := metagov.At(s.cfg.Addresses.MetaGov).GetReceipt(ctx, id, voter)
			if err != nil {
				return err
			}
			out = ReceiptResult{HasVoted: r.HasVoted, Support: r.Support, Votes: amount(r.Votes)}
			return nil
		}
		gov := governance.At(s.cfg.Addresses.Governor)
		if _, err := gov.Proposal(ctx, id); err != nil {
			return err
		}
		r, err := gov.GetReceipt(ctx, id, voter)
		if err != nil {
			return err
		}
		out = ReceiptResult{HasVoted: r.HasVoted, Support: r.Support, Votes: amount(r.Votes)}
		return nil
	})
	if rpcErr != nil {
		return nil, rpcErr
	}
	return out, nil
}

func (s *Server) getMetaState(_ context.Context, params []json.RawMessage) (interface{}, *Error) {
	id, rpcErr := uint64Param(params, 0, "proposal id")
	if rpcErr != nil {
		return nil, rpcErr
	}
	out := MetaStateResult{ID: id}
	rpcErr = s.view(func(ctx *chain.Context) error {
		if err := ctx.RequireKind(s.cfg.Addresses.MetaGov, metagov.Kind); err != nil {
			return err
		}
		bridge := metagov.At(s.cfg.Addresses.MetaGov)
		state, err := bridge.State(ctx, id)
		if err != nil {
			return err
		}
		p, mirrored, err := bridge.Proposal(ctx, id)
		if err != nil {
			return err
		}
		out.State = state.String()
		out.Mirrored = mirrored
		out.StartBlock, out.EndBlock = p.StartBlock, p.EndBlock
		out.ForVotes, out.AgainstVotes = amount(p.ForVotes), amount(p.AgainstVotes)
		out.VoteSubmitted = p.VoteSubmitted
		return nil
	})
	if rpcErr != nil {
		return nil, rpcErr
	}
	return out, nil
}

func (s *Server) stakingPool(ctx *chain.Context, stakingToken crypto.Address) (*staking.Pool, *staking.RewardsInfo, error) {
	factory := staking.FactoryAt(s.cfg.Addresses.StakingFactory)
	info, err := factory.StakingRewardsInfo(ctx, stakingToken)
	if err != nil {
		return nil, nil, err
	}
	if info.StakingRewards.IsZero() {
		return nil, nil, invalidParams("no staking pool for token", fmt.Errorf("%s", stakingToken))
	}
	return staking.PoolAt(info.StakingRewards), info, nil
}

// ndx_getPool [stakingToken]
func (s *Server) getPool(_ context.Context, params []json.RawMessage) (interface{}, *Error) {
	stakingToken, rpcErr := addressParam(params, 0, "staking token")
	if rpcErr != nil {
		return nil, rpcErr
	}
	out := PoolResult{StakingToken: stakingToken.String()}
	rpcErr = s.view(func(ctx *chain.Context) error {
		pool, info, err := s.stakingPool(ctx, stakingToken)
		if err != nil {
			return err
		}
		out.StakingRewards = info.StakingRewards.String()
		out.TokenType = staking.TokenType(info.TokenType).String()
		out.PendingReward = amount(info.RewardAmount)
		if out.Duration, err = pool.RewardsDuration(ctx); err != nil {
			return err
		}
		if out.PeriodFinish, err = pool.PeriodFinish(ctx); err != nil {
			return err
		}
		rate, err := pool.RewardRate(ctx)
		if err != nil {
			return err
		}
		perToken, err := pool.RewardPerToken(ctx)
		if err != nil {
			return err
		}
		supply, err := pool.TotalSupply(ctx)
		if err != nil {
			return err
		}
		out.RewardRate, out.RewardPerToken, out.TotalSupply = amount(rate), amount(perToken), amount(supply)
		return nil
	})
	if rpcErr != nil {
		return nil, rpcErr
	}
	return out, nil
}

// ndx_getEarned [stakingToken, account]
func (s *Server) getEarned(_ context.Context, params []json.RawMessage) (interface{}, *Error) {
	stakingToken, rpcErr := addressParam(params, 0, "staking token")
	if rpcErr != nil {
		return nil, rpcErr
	}
	account, rpcErr := addressParam(params, 1, "account")
	if rpcErr != nil {
		return nil, rpcErr
	}
	out := EarnedResult{Account: account.String()}
	rpcErr = s.view(func(ctx *chain.Context) error {
		pool, _, err := s.stakingPool(ctx, stakingToken)
		if err != nil {
			return err
		}
		staked, err := pool.BalanceOf(ctx, account)
		if err != nil {
			return err
		}
		earned, err := pool.Earned(ctx, account)
		if err != nil {
			return err
		}
		out.Staked, out.Earned = amount(staked), amount(earned)
		return nil
	})
	if rpcErr != nil {
		return nil, rpcErr
	}
	return out, nil
}

func (s *Server) getStakingTokens(_ context.Context, _ []json.RawMessage) (interface{}, *Error) {
	out := []string{}
	rpcErr := s.view(func(ctx *chain.Context) error {
		tokens, err := staking.FactoryAt(s.cfg.Addresses.StakingFactory).GetStakingTokens(ctx)
		if err != nil {
			return err
		}
		for _, t := range tokens {
			out = append(out, t.String())
		}
		return nil
	})
	if rpcErr != nil {
		return nil, rpcErr
	}
	return out, nil
}

// ndx_getVester [address] describes a treasury, delegating or cancelable
// vester.
func (s *Server) getVester(_ context.Context, params []json.RawMessage) (interface{}, *Error) {
	addr, rpcErr := addressParam(params, 0, "vester")
	if rpcErr != nil {
		return nil, rpcErr
	}
	out := VesterResult{Address: addr.String()}
	rpcErr = s.view(func(ctx *chain.Context) error {
		kind, err := ctx.KindOf(addr)
		if err != nil {
			return err
		}
		switch kind {
		case vesting.TreasuryVesterKind, vesting.DelegatingVesterKind, vesting.CancelableVesterKind:
		default:
			return invalidParams("address is not a vester", fmt.Errorf("kind %q", kind))
		}
		v := vesting.VesterAt(addr, kind)
		sched, err := v.Schedule(ctx)
		if err != nil {
			return err
		}
		out.Kind = kind
		out.Token, out.Recipient = sched.Token.String(), sched.Recipient.String()
		out.Amount = amount(sched.Amount)
		out.Begin, out.Cliff, out.End = sched.Begin, sched.Cliff, sched.End
		if out.LastUpdate, err = v.LastUpdate(ctx); err != nil {
			return err
		}
		claimable, err := v.Claimable(ctx)
		if err != nil {
			return err
		}
		balance, err := erc20.BalanceOf(ctx, sched.Token, addr)
		if err != nil {
			return err
		}
		out.Claimable, out.Balance = amount(claimable), amount(balance)
		if kind == vesting.CancelableVesterKind {
			terminator, err := v.Terminator(ctx)
			if err != nil {
				return err
			}
			out.Terminator = terminator.String()
			if out.Terminated, err = v.Terminated(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if rpcErr != nil {
		return nil, rpcErr
	}
	return out, nil
}

// ndx_getBlock [height | "latest"]
func (s *Server) getBlock(_ context.Context, params []json.RawMessage) (interface{}, *Error) {
	latest := len(params) == 0
	if !latest {
		var tag string
		if err := json.Unmarshal(params[0], &tag); err == nil && strings.EqualFold(tag, "latest") {
			latest = true
		}
	}
	if latest {
		head := s.chain.Head()
		if head == nil {
			return nil, serverError("no sealed blocks", nil)
		}
		res, err := blockResult(head)
		if err != nil {
			return nil, serverError("failed to hash block", err)
		}
		return res, nil
	}
	height, rpcErr := uint64Param(params, 0, "height")
	if rpcErr != nil {
		return nil, rpcErr
	}
	header, err := s.chain.Block(height)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, invalidParams("block not found", nil)
	}
	if err != nil {
		return nil, serverError("failed to load block", err)
	}
	res, err := blockResult(header)
	if err != nil {
		return nil, serverError("failed to hash block", err)
	}
	return res, nil
}

type eventFilter struct {
	Type      string `json:"type"`
	Module    string `json:"module"`
	Address   string `json:"address"`
	FromBlock uint64 `json:"fromBlock"`
	ToBlock   uint64 `json:"toBlock"`
	Limit     int    `json:"limit"`
}

// ndx_getEvents [{type, module, address, fromBlock, toBlock, limit}]
func (s *Server) getEvents(ctx context.Context, params []json.RawMessage) (interface{}, *Error) {
	if s.index == nil {
		return nil, serverError("event index unavailable", nil)
	}
	var f eventFilter
	if len(params) > 0 {
		if err := json.Unmarshal(params[0], &f); err != nil {
			return nil, invalidParams("invalid event filter", err)
		}
	}
	filter := indexer.Filter{Type: f.Type, Module: f.Module, FromBlock: f.FromBlock, ToBlock: f.ToBlock, Limit: f.Limit}
	if f.Address != "" {
		addr, err := crypto.ParseAddress(f.Address)
		if err != nil {
			return nil, invalidParams("invalid event address", err)
		}
		filter.Address = addr
	}
	records, err := s.index.Query(ctx, filter)
	if err != nil {
		return nil, serverError("failed to query events", err)
	}
	out := make([]EventResult, 0, len(records))
	for _, rec := range records {
		evt, err := eventFromRecord(rec)
		if err != nil {
			return nil, serverError("failed to decode event", err)
		}
		out = append(out, evt)
	}
	return out, nil
}
