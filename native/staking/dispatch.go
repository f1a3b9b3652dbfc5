package staking

import (
	"ndxgov/core/chain"
	nativecommon "ndxgov/native/common"
)

const (
	sigInitialize         = "initialize(address,uint256)"
	sigStake              = "stake(uint256)"
	sigWithdraw           = "withdraw(uint256)"
	sigGetReward          = "getReward()"
	sigExit               = "exit()"
	sigNotifyRewardAmount = "notifyRewardAmount(uint256)"
	sigSetRewardsDuration = "setRewardsDuration(uint256)"
	sigRecoverERC20       = "recoverERC20(address,address)"

	sigDeployForPool      = "deployStakingRewardsForPool(address,uint256,uint256)"
	sigDeployForPair      = "deployStakingRewardsForPoolUniswapPair(address,uint256,uint256)"
	sigFactoryNotify      = "notifyRewardAmount(address)"
	sigNotifyAll          = "notifyRewardAmounts()"
	sigIncrease           = "increaseStakingRewards(address,uint256)"
	sigFactorySetDuration = "setRewardsDuration(address,uint256)"
	sigFactoryRecover     = "recoverERC20(address,address,address)"
	sigTransferOwnership  = "transferOwnership(address)"
)

// Invoke implements chain.Contract.
func (p *Pool) Invoke(ctx *chain.Context, method string, args chain.Args) error {
	switch method {
	case sigInitialize:
		token, err := args.Address(0)
		if err != nil {
			return err
		}
		duration, err := args.Uint64(1)
		if err != nil {
			return err
		}
		return p.initialize(ctx, token, duration)
	case sigStake:
		amount, err := args.Big(0)
		if err != nil {
			return err
		}
		return p.stake(ctx, amount)
	case sigWithdraw:
		amount, err := args.Big(0)
		if err != nil {
			return err
		}
		return p.guarded(ctx, func() error { return p.withdraw(ctx, ctx.Caller(), amount) })
	case sigGetReward:
		return p.guarded(ctx, func() error { return p.getReward(ctx, ctx.Caller()) })
	case sigExit:
		return p.guarded(ctx, func() error { return p.exit(ctx) })
	case sigNotifyRewardAmount:
		reward, err := args.Big(0)
		if err != nil {
			return err
		}
		return p.notifyRewardAmount(ctx, reward)
	case sigSetRewardsDuration:
		duration, err := args.Uint64(0)
		if err != nil {
			return err
		}
		return p.setRewardsDuration(ctx, duration)
	case sigRecoverERC20:
		token, err := args.Address(0)
		if err != nil {
			return err
		}
		recipient, err := args.Address(1)
		if err != nil {
			return err
		}
		return p.recoverERC20(ctx, token, recipient)
	}
	return chain.Dispatcher(nil).Invoke(ctx, method, args)
}

// Invoke implements chain.Contract.
func (f *Factory) Invoke(ctx *chain.Context, method string, args chain.Args) error {
	return chain.Dispatcher{
		sigDeployForPool: func(ctx *chain.Context, args chain.Args) error {
			return f.dispatchDeploy(ctx, args, opDeployForPool, TokenTypeIndexPool)
		},
		sigDeployForPair: func(ctx *chain.Context, args chain.Args) error {
			return f.dispatchDeploy(ctx, args, opDeployForPair, TokenTypeUniswapPair)
		},
		sigFactoryNotify: func(ctx *chain.Context, args chain.Args) error {
			token, err := args.Address(0)
			if err != nil {
				return err
			}
			return f.notifyRewardAmount(ctx, token)
		},
		sigNotifyAll: func(ctx *chain.Context, _ chain.Args) error {
			return f.notifyRewardAmounts(ctx)
		},
		sigIncrease: func(ctx *chain.Context, args chain.Args) error {
			token, err := args.Address(0)
			if err != nil {
				return err
			}
			amount, err := args.Big(1)
			if err != nil {
				return err
			}
			return f.increaseStakingRewards(ctx, token, amount)
		},
		sigFactorySetDuration: func(ctx *chain.Context, args chain.Args) error {
			token, err := args.Address(0)
			if err != nil {
				return err
			}
			duration, err := args.Uint64(1)
			if err != nil {
				return err
			}
			return f.setRewardsDuration(ctx, token, duration)
		},
		sigFactoryRecover: func(ctx *chain.Context, args chain.Args) error {
			stakingToken, err := args.Address(0)
			if err != nil {
				return err
			}
			token, err := args.Address(1)
			if err != nil {
				return err
			}
			recipient, err := args.Address(2)
			if err != nil {
				return err
			}
			return f.recoverERC20(ctx, stakingToken, token, recipient)
		},
		sigTransferOwnership: func(ctx *chain.Context, args chain.Args) error {
			next, err := args.Address(0)
			if err != nil {
				return err
			}
			if err := f.onlyOwner(ctx); err != nil {
				return err
			}
			return nativecommon.PutAddress(ctx.State(), f.key("owner"), next)
		},
	}.Invoke(ctx, method, args)
}

func (f *Factory) dispatchDeploy(ctx *chain.Context, args chain.Args, op string, tokenType TokenType) error {
	indexPool, err := args.Address(0)
	if err != nil {
		return err
	}
	rewardAmount, err := args.Big(1)
	if err != nil {
		return err
	}
	duration, err := args.Uint64(2)
	if err != nil {
		return err
	}
	return f.deploy(ctx, op, indexPool, rewardAmount, duration, tokenType)
}
