// Package staking implements reward accrual pools and the factory that
// deploys and funds them.
//
// A pool streams a fixed reward amount over a period. The reward per staked
// token accrues as
//
//	rewardPerToken = stored + (lastTimeRewardApplicable - lastUpdateTime) * rewardRate * 1e18 / totalSupply
//
// and an account has earned balance * (rewardPerToken - paid) / 1e18 on top
// of its settled rewards.
package staking

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"

	"ndxgov/core/chain"
	"ndxgov/crypto"
	nativecommon "ndxgov/native/common"
	"ndxgov/native/erc20"
)

const PoolKind = "staking.pool"

var (
	ErrNotDistribution   = errors.New("staking: caller is not the rewards distribution")
	ErrNullStakingToken  = errors.New("staking: can not set null staking token")
	ErrAlreadyInit       = errors.New("staking: already initialized")
	ErrZeroDuration      = errors.New("staking: rewards duration is zero")
	ErrStakeZero         = errors.New("staking: cannot stake 0")
	ErrWithdrawZero      = errors.New("staking: cannot withdraw 0")
	ErrRewardTooHigh     = errors.New("staking: provided reward too high")
	ErrPeriodNotComplete = errors.New("staking: previous rewards period must be complete before changing the duration for the new period")
	ErrRecoverProtected  = errors.New("staking: cannot withdraw the staking or rewards tokens")
	ErrAddOverflow       = errors.New("staking: addition overflow")
	ErrSubOverflow       = errors.New("staking: subtraction overflow")
	ErrMulOverflow       = errors.New("staking: multiplication overflow")
)

var wad = uint256.NewInt(1_000_000_000_000_000_000)

type poolConfig struct {
	RewardsDistribution crypto.Address
	RewardsToken        crypto.Address
	StakingToken        crypto.Address
}

// Pool is a handle on a deployed reward accrual pool.
type Pool struct {
	addr crypto.Address
}

func PoolAt(addr crypto.Address) *Pool { return &Pool{addr: addr} }

// DeployPool creates an uninitialised pool. Only distribution may initialise
// it, fund it and change its duration.
func DeployPool(ctx *chain.Context, addr, distribution, rewardsToken crypto.Address) (*Pool, error) {
	if err := ctx.Deploy(addr, PoolKind); err != nil {
		return nil, err
	}
	p := PoolAt(addr)
	cfg := &poolConfig{RewardsDistribution: distribution, RewardsToken: rewardsToken}
	if err := ctx.State().KVPut(p.key("config"), cfg); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pool) key(field string, parts ...[]byte) []byte {
	return nativecommon.Key(p.addr, field, parts...)
}

func (p *Pool) Address() crypto.Address { return p.addr }

func (p *Pool) config(ctx *chain.Context) (*poolConfig, error) {
	var cfg poolConfig
	if _, err := ctx.State().KVGet(p.key("config"), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (p *Pool) RewardsDistribution(ctx *chain.Context) (crypto.Address, error) {
	cfg, err := p.config(ctx)
	if err != nil {
		return crypto.Address{}, err
	}
	return cfg.RewardsDistribution, nil
}

func (p *Pool) RewardsToken(ctx *chain.Context) (crypto.Address, error) {
	cfg, err := p.config(ctx)
	if err != nil {
		return crypto.Address{}, err
	}
	return cfg.RewardsToken, nil
}

func (p *Pool) StakingToken(ctx *chain.Context) (crypto.Address, error) {
	cfg, err := p.config(ctx)
	if err != nil {
		return crypto.Address{}, err
	}
	return cfg.StakingToken, nil
}

func (p *Pool) RewardsDuration(ctx *chain.Context) (uint64, error) {
	return nativecommon.GetUint64(ctx.State(), p.key("duration"))
}

func (p *Pool) PeriodFinish(ctx *chain.Context) (uint64, error) {
	return nativecommon.GetUint64(ctx.State(), p.key("period_finish"))
}

func (p *Pool) LastUpdateTime(ctx *chain.Context) (uint64, error) {
	return nativecommon.GetUint64(ctx.State(), p.key("last_update"))
}

func (p *Pool) RewardRate(ctx *chain.Context) (*big.Int, error) {
	return nativecommon.GetBig(ctx.State(), p.key("reward_rate"))
}

func (p *Pool) RewardPerTokenStored(ctx *chain.Context) (*big.Int, error) {
	return nativecommon.GetBig(ctx.State(), p.key("reward_per_token"))
}

func (p *Pool) TotalSupply(ctx *chain.Context) (*big.Int, error) {
	return nativecommon.GetBig(ctx.State(), p.key("total_supply"))
}

func (p *Pool) BalanceOf(ctx *chain.Context, account crypto.Address) (*big.Int, error) {
	return nativecommon.GetBig(ctx.State(), p.key("balance", account.Bytes()))
}

func (p *Pool) UserRewardPerTokenPaid(ctx *chain.Context, account crypto.Address) (*big.Int, error) {
	return nativecommon.GetBig(ctx.State(), p.key("paid", account.Bytes()))
}

func (p *Pool) Rewards(ctx *chain.Context, account crypto.Address) (*big.Int, error) {
	return nativecommon.GetBig(ctx.State(), p.key("rewards", account.Bytes()))
}

// LastTimeRewardApplicable is min(now, periodFinish), which is zero before
// the first reward notification.
func (p *Pool) LastTimeRewardApplicable(ctx *chain.Context) (uint64, error) {
	finish, err := p.PeriodFinish(ctx)
	if err != nil {
		return 0, err
	}
	if now := ctx.Timestamp(); now < finish {
		return now, nil
	}
	return finish, nil
}

func (p *Pool) RewardPerToken(ctx *chain.Context) (*big.Int, error) {
	rpt, err := p.rewardPerToken(ctx)
	if err != nil {
		return nil, err
	}
	return rpt.ToBig(), nil
}

func (p *Pool) Earned(ctx *chain.Context, account crypto.Address) (*big.Int, error) {
	rpt, err := p.rewardPerToken(ctx)
	if err != nil {
		return nil, err
	}
	earned, err := p.earned(ctx, account, rpt)
	if err != nil {
		return nil, err
	}
	return earned.ToBig(), nil
}

// GetRewardForDuration is rewardRate * rewardsDuration.
func (p *Pool) GetRewardForDuration(ctx *chain.Context) (*big.Int, error) {
	rate, err := p.getU(ctx, p.key("reward_rate"))
	if err != nil {
		return nil, err
	}
	duration, err := p.RewardsDuration(ctx)
	if err != nil {
		return nil, err
	}
	out, overflow := new(uint256.Int).MulOverflow(rate, uint256.NewInt(duration))
	if overflow {
		return nil, ErrMulOverflow
	}
	return out.ToBig(), nil
}

func (p *Pool) Initialize(ctx *chain.Context, stakingToken crypto.Address, duration uint64) error {
	return ctx.Invoke(p.addr, sigInitialize, stakingToken, duration)
}

func (p *Pool) Stake(ctx *chain.Context, amount *big.Int) error {
	return ctx.Invoke(p.addr, sigStake, amount)
}

func (p *Pool) Withdraw(ctx *chain.Context, amount *big.Int) error {
	return ctx.Invoke(p.addr, sigWithdraw, amount)
}

func (p *Pool) GetReward(ctx *chain.Context) error {
	return ctx.Invoke(p.addr, sigGetReward)
}

func (p *Pool) Exit(ctx *chain.Context) error {
	return ctx.Invoke(p.addr, sigExit)
}

func (p *Pool) NotifyRewardAmount(ctx *chain.Context, reward *big.Int) error {
	return ctx.Invoke(p.addr, sigNotifyRewardAmount, reward)
}

func (p *Pool) SetRewardsDuration(ctx *chain.Context, duration uint64) error {
	return ctx.Invoke(p.addr, sigSetRewardsDuration, duration)
}

func (p *Pool) RecoverERC20(ctx *chain.Context, token, recipient crypto.Address) error {
	return ctx.Invoke(p.addr, sigRecoverERC20, token, recipient)
}

func (p *Pool) getU(ctx *chain.Context, key []byte) (*uint256.Int, error) {
	v, err := nativecommon.GetBig(ctx.State(), key)
	if err != nil {
		return nil, err
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrAddOverflow
	}
	return out, nil
}

func (p *Pool) putU(ctx *chain.Context, key []byte, v *uint256.Int) error {
	return nativecommon.PutBig(ctx.State(), key, v.ToBig())
}

func (p *Pool) rewardPerToken(ctx *chain.Context) (*uint256.Int, error) {
	stored, err := p.getU(ctx, p.key("reward_per_token"))
	if err != nil {
		return nil, err
	}
	supply, err := p.getU(ctx, p.key("total_supply"))
	if err != nil {
		return nil, err
	}
	if supply.IsZero() {
		return stored, nil
	}
	applicable, err := p.LastTimeRewardApplicable(ctx)
	if err != nil {
		return nil, err
	}
	lastUpdate, err := p.LastUpdateTime(ctx)
	if err != nil {
		return nil, err
	}
	if applicable < lastUpdate {
		return nil, ErrSubOverflow
	}
	rate, err := p.getU(ctx, p.key("reward_rate"))
	if err != nil {
		return nil, err
	}
	delta, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(applicable-lastUpdate), rate)
	if overflow {
		return nil, ErrMulOverflow
	}
	if _, overflow = delta.MulOverflow(delta, wad); overflow {
		return nil, ErrMulOverflow
	}
	delta.Div(delta, supply)
	out, overflow := new(uint256.Int).AddOverflow(stored, delta)
	if overflow {
		return nil, ErrAddOverflow
	}
	return out, nil
}

func (p *Pool) earned(ctx *chain.Context, account crypto.Address, rpt *uint256.Int) (*uint256.Int, error) {
	balance, err := p.getU(ctx, p.key("balance", account.Bytes()))
	if err != nil {
		return nil, err
	}
	paid, err := p.getU(ctx, p.key("paid", account.Bytes()))
	if err != nil {
		return nil, err
	}
	settled, err := p.getU(ctx, p.key("rewards", account.Bytes()))
	if err != nil {
		return nil, err
	}
	delta, underflow := new(uint256.Int).SubOverflow(rpt, paid)
	if underflow {
		return nil, ErrSubOverflow
	}
	if _, overflow := delta.MulOverflow(balance, delta); overflow {
		return nil, ErrMulOverflow
	}
	delta.Div(delta, wad)
	out, overflow := new(uint256.Int).AddOverflow(delta, settled)
	if overflow {
		return nil, ErrAddOverflow
	}
	return out, nil
}

// updateReward checkpoints accrual and, for a non-zero account, settles its
// earnings. It runs before any balance or rate change.
func (p *Pool) updateReward(ctx *chain.Context, account crypto.Address) error {
	rpt, err := p.rewardPerToken(ctx)
	if err != nil {
		return err
	}
	if err := p.putU(ctx, p.key("reward_per_token"), rpt); err != nil {
		return err
	}
	applicable, err := p.LastTimeRewardApplicable(ctx)
	if err != nil {
		return err
	}
	if err := nativecommon.PutUint64(ctx.State(), p.key("last_update"), applicable); err != nil {
		return err
	}
	if account.IsZero() {
		return nil
	}
	earned, err := p.earned(ctx, account, rpt)
	if err != nil {
		return err
	}
	if err := p.putU(ctx, p.key("rewards", account.Bytes()), earned); err != nil {
		return err
	}
	return p.putU(ctx, p.key("paid", account.Bytes()), rpt)
}

func (p *Pool) onlyDistribution(ctx *chain.Context) (*poolConfig, error) {
	cfg, err := p.config(ctx)
	if err != nil {
		return nil, err
	}
	if ctx.Caller() != cfg.RewardsDistribution {
		return nil, ErrNotDistribution
	}
	return cfg, nil
}

func (p *Pool) initialize(ctx *chain.Context, stakingToken crypto.Address, duration uint64) error {
	cfg, err := p.onlyDistribution(ctx)
	if err != nil {
		return err
	}
	if !cfg.StakingToken.IsZero() {
		return ErrAlreadyInit
	}
	if stakingToken.IsZero() {
		return ErrNullStakingToken
	}
	if duration == 0 {
		return ErrZeroDuration
	}
	cfg.StakingToken = stakingToken
	if err := ctx.State().KVPut(p.key("config"), cfg); err != nil {
		return err
	}
	return nativecommon.PutUint64(ctx.State(), p.key("duration"), duration)
}

// adjust adds (or subtracts) amount to the account balance and total supply.
func (p *Pool) adjust(ctx *chain.Context, account crypto.Address, amount *uint256.Int, add bool) error {
	for _, key := range [][]byte{p.key("total_supply"), p.key("balance", account.Bytes())} {
		current, err := p.getU(ctx, key)
		if err != nil {
			return err
		}
		var overflow bool
		if add {
			_, overflow = current.AddOverflow(current, amount)
		} else {
			_, overflow = current.SubOverflow(current, amount)
		}
		if overflow {
			if add {
				return ErrAddOverflow
			}
			return ErrSubOverflow
		}
		if err := p.putU(ctx, key, current); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pool) stake(ctx *chain.Context, amount *big.Int) error {
	return p.guarded(ctx, func() error { return p.stakeFor(ctx, amount) })
}

func (p *Pool) stakeFor(ctx *chain.Context, amount *big.Int) error {
	if amount.Sign() == 0 {
		return ErrStakeZero
	}
	value, overflow := uint256.FromBig(amount)
	if overflow {
		return ErrAddOverflow
	}
	account := ctx.Caller()
	if err := p.updateReward(ctx, account); err != nil {
		return err
	}
	if err := p.adjust(ctx, account, value, true); err != nil {
		return err
	}
	cfg, err := p.config(ctx)
	if err != nil {
		return err
	}
	if err := erc20.TransferFrom(ctx, cfg.StakingToken, account, p.addr, amount); err != nil {
		return err
	}
	ctx.Emit(staked(account, amount))
	return nil
}

func (p *Pool) withdraw(ctx *chain.Context, account crypto.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return ErrWithdrawZero
	}
	value, overflow := uint256.FromBig(amount)
	if overflow {
		return ErrSubOverflow
	}
	if err := p.updateReward(ctx, account); err != nil {
		return err
	}
	if err := p.adjust(ctx, account, value, false); err != nil {
		return err
	}
	cfg, err := p.config(ctx)
	if err != nil {
		return err
	}
	if err := erc20.Transfer(ctx, cfg.StakingToken, account, amount); err != nil {
		return err
	}
	ctx.Emit(withdrawn(account, amount))
	return nil
}

func (p *Pool) getReward(ctx *chain.Context, account crypto.Address) error {
	if err := p.updateReward(ctx, account); err != nil {
		return err
	}
	reward, err := p.Rewards(ctx, account)
	if err != nil {
		return err
	}
	if reward.Sign() == 0 {
		return nil
	}
	if err := ctx.State().KVDelete(p.key("rewards", account.Bytes())); err != nil {
		return err
	}
	cfg, err := p.config(ctx)
	if err != nil {
		return err
	}
	if err := erc20.Transfer(ctx, cfg.RewardsToken, account, reward); err != nil {
		return err
	}
	ctx.Emit(rewardPaid(account, reward))
	return nil
}

func (p *Pool) guarded(ctx *chain.Context, fn func() error) (err error) {
	release, err := nativecommon.Guard(ctx.State(), p.addr)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := release(); err == nil {
			err = releaseErr
		}
	}()
	return fn()
}

func (p *Pool) exit(ctx *chain.Context) error {
	account := ctx.Caller()
	balance, err := p.BalanceOf(ctx, account)
	if err != nil {
		return err
	}
	if err := p.withdraw(ctx, account, balance); err != nil {
		return err
	}
	return p.getReward(ctx, account)
}

func (p *Pool) notifyRewardAmount(ctx *chain.Context, reward *big.Int) error {
	cfg, err := p.onlyDistribution(ctx)
	if err != nil {
		return err
	}
	if err := p.updateReward(ctx, crypto.Address{}); err != nil {
		return err
	}
	amount, overflow := uint256.FromBig(reward)
	if overflow {
		return ErrAddOverflow
	}
	durationSecs, err := p.RewardsDuration(ctx)
	if err != nil {
		return err
	}
	if durationSecs == 0 {
		return ErrZeroDuration
	}
	duration := uint256.NewInt(durationSecs)
	finish, err := p.PeriodFinish(ctx)
	if err != nil {
		return err
	}
	now := ctx.Timestamp()
	rate := new(uint256.Int)
	if now >= finish {
		rate.Div(amount, duration)
	} else {
		current, err := p.getU(ctx, p.key("reward_rate"))
		if err != nil {
			return err
		}
		leftover, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(finish-now), current)
		if overflow {
			return ErrMulOverflow
		}
		if _, overflow = leftover.AddOverflow(leftover, amount); overflow {
			return ErrAddOverflow
		}
		rate.Div(leftover, duration)
	}

	// The full period must be payable from the balance already held.
	held, err := erc20.BalanceOf(ctx, cfg.RewardsToken, p.addr)
	if err != nil {
		return err
	}
	balance, overflow := uint256.FromBig(held)
	if overflow {
		return ErrAddOverflow
	}
	if rate.Gt(new(uint256.Int).Div(balance, duration)) {
		return ErrRewardTooHigh
	}
	if err := p.putU(ctx, p.key("reward_rate"), rate); err != nil {
		return err
	}
	if err := nativecommon.PutUint64(ctx.State(), p.key("last_update"), now); err != nil {
		return err
	}
	if err := nativecommon.PutUint64(ctx.State(), p.key("period_finish"), now+durationSecs); err != nil {
		return err
	}
	ctx.Emit(rewardAdded(reward))
	return nil
}

func (p *Pool) setRewardsDuration(ctx *chain.Context, duration uint64) error {
	if _, err := p.onlyDistribution(ctx); err != nil {
		return err
	}
	finish, err := p.PeriodFinish(ctx)
	if err != nil {
		return err
	}
	if ctx.Timestamp() <= finish {
		return ErrPeriodNotComplete
	}
	if duration == 0 {
		return ErrZeroDuration
	}
	if err := nativecommon.PutUint64(ctx.State(), p.key("duration"), duration); err != nil {
		return err
	}
	ctx.Emit(rewardsDurationUpdated(duration))
	return nil
}

func (p *Pool) recoverERC20(ctx *chain.Context, token, recipient crypto.Address) error {
	cfg, err := p.onlyDistribution(ctx)
	if err != nil {
		return err
	}
	if token == cfg.StakingToken || token == cfg.RewardsToken {
		return ErrRecoverProtected
	}
	balance, err := erc20.BalanceOf(ctx, token, p.addr)
	if err != nil {
		return err
	}
	if err := erc20.Transfer(ctx, token, recipient, balance); err != nil {
		return err
	}
	ctx.Emit(recovered(token, recipient, balance))
	return nil
}
