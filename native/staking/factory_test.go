package staking

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"ndxgov/core/chain"
	"ndxgov/core/events"
	"ndxgov/crypto"
	"ndxgov/native/amm"
	"ndxgov/native/bank"
	"ndxgov/native/indexpool"
	"ndxgov/storage"
)

type factoryFixture struct {
	chain    *chain.Chain
	clock    *chain.ManualClock
	rec      *events.Recorder
	factory  *Factory
	registry *indexpool.Registry
	ndx      *bank.Token
	owner    crypto.Address
	genesis  uint64
	pools    []crypto.Address
	ammAddr  crypto.Address
	weth     crypto.Address
}

func newFactoryFixture(t *testing.T) *factoryFixture {
	t.Helper()
	clock := chain.NewManualClock(1, 1_600_000_000)
	rec := &events.Recorder{}
	c, err := chain.New(storage.NewMemDB(), clock, chain.WithEmitter(rec))
	require.NoError(t, err)
	Register(c)
	bank.Register(c)
	indexpool.Register(c)
	f := &factoryFixture{
		chain:   c,
		clock:   clock,
		rec:     rec,
		owner:   crypto.ContractAddress("account/owner"),
		genesis: 1_600_000_000 + 600,
		ammAddr: crypto.ContractAddress("uniswap/factory"),
		weth:    crypto.ContractAddress("token/weth"),
	}
	require.NoError(t, c.Execute(f.owner, func(ctx *chain.Context) error {
		var err error
		if f.ndx, err = bank.Deploy(ctx, crypto.ContractAddress("token/ndx"), bank.Metadata{Name: "Indexed", Symbol: "NDX", Decimals: 18}); err != nil {
			return err
		}
		if f.registry, err = indexpool.Deploy(ctx, crypto.ContractAddress("indexpool/registry"), f.owner); err != nil {
			return err
		}
		for _, name := range []string{"defi5", "cc10", "orcl5"} {
			pool, err := bank.Deploy(ctx, crypto.ContractAddress("indexpool/"+name), bank.Metadata{Name: name, Symbol: name, Decimals: 18})
			if err != nil {
				return err
			}
			f.pools = append(f.pools, pool.Address())
		}
		for _, pool := range f.pools[:2] {
			if err := f.registry.AddPool(ctx, pool); err != nil {
				return err
			}
		}
		f.factory, err = DeployFactory(ctx, crypto.ContractAddress("staking/factory"), FactoryConfig{
			RewardsToken:          f.ndx.Address(),
			StakingRewardsGenesis: f.genesis,
			PoolRegistry:          f.registry.Address(),
			AMMFactory:            f.ammAddr,
			WrappedNative:         f.weth,
		})
		if err != nil {
			return err
		}
		return f.ndx.Mint(ctx, f.factory.Address(), e18(100_000_000))
	}))
	return f
}

func (f *factoryFixture) as(caller crypto.Address, fn func(*chain.Context) error) error {
	return f.chain.Execute(caller, fn)
}

func (f *factoryFixture) deploy(t *testing.T, pool crypto.Address, reward *big.Int) crypto.Address {
	t.Helper()
	require.NoError(t, f.as(f.owner, func(ctx *chain.Context) error {
		return f.factory.DeployStakingRewardsForPool(ctx, pool, reward, 0)
	}))
	var addr crypto.Address
	require.NoError(t, f.chain.View(func(ctx *chain.Context) error {
		var err error
		addr, err = f.factory.GetStakingRewards(ctx, pool)
		return err
	}))
	return addr
}

func (f *factoryFixture) info(t *testing.T, token crypto.Address) *RewardsInfo {
	t.Helper()
	var out *RewardsInfo
	require.NoError(t, f.chain.View(func(ctx *chain.Context) error {
		var err error
		out, err = f.factory.StakingRewardsInfo(ctx, token)
		return err
	}))
	return out
}

func (f *factoryFixture) ndxBalance(t *testing.T, owner crypto.Address) *big.Int {
	t.Helper()
	var out *big.Int
	require.NoError(t, f.chain.View(func(ctx *chain.Context) error {
		var err error
		out, err = f.ndx.BalanceOf(ctx, owner)
		return err
	}))
	return out
}

func (f *factoryFixture) toGenesis() {
	f.clock.SetTime(f.genesis)
}

func TestDeployStakingRewardsForPool(t *testing.T) {
	f := newFactoryFixture(t)
	stranger := crypto.ContractAddress("account/stranger")

	err := f.as(stranger, func(ctx *chain.Context) error {
		return f.factory.DeployStakingRewardsForPool(ctx, f.pools[0], e18(10), 0)
	})
	require.ErrorIs(t, err, ErrNotOwner)

	err = f.as(f.owner, func(ctx *chain.Context) error {
		return f.factory.DeployStakingRewardsForPool(ctx, f.pools[2], e18(10), 0)
	})
	require.ErrorIs(t, err, ErrNotIndexPool)
	require.EqualError(t, err, "deployStakingRewardsForPool: staking: not an index pool")

	addr := f.deploy(t, f.pools[0], e18(10))
	require.Equal(t, f.factory.ComputeStakingRewardsAddress(f.pools[0]), addr)
	info := f.info(t, f.pools[0])
	require.Equal(t, e18(10), info.RewardAmount)
	require.Equal(t, uint8(TokenTypeIndexPool), info.TokenType)

	require.NoError(t, f.chain.View(func(ctx *chain.Context) error {
		pool := PoolAt(addr)
		token, err := pool.StakingToken(ctx)
		require.NoError(t, err)
		require.Equal(t, f.pools[0], token)
		duration, err := pool.RewardsDuration(ctx)
		require.NoError(t, err)
		require.Equal(t, DefaultRewardsDuration, duration)
		distribution, err := pool.RewardsDistribution(ctx)
		require.NoError(t, err)
		require.Equal(t, f.factory.Address(), distribution)
		tokens, err := f.factory.GetStakingTokens(ctx)
		require.NoError(t, err)
		require.Equal(t, []crypto.Address{f.pools[0]}, tokens)
		first, err := f.factory.StakingTokens(ctx, 0)
		require.NoError(t, err)
		require.Equal(t, f.pools[0], first)
		_, err = f.factory.StakingTokens(ctx, 1)
		require.ErrorIs(t, err, chain.ErrBadArgument)
		return nil
	}))

	added := f.rec.Logs(TypeStakingRewardsAdded)
	require.Len(t, added, 1)
	require.Equal(t, "0", added[0].Event.Attributes["tokenType"])
	require.Len(t, f.rec.Logs(TypeIndexPoolStakingRewardsAdded), 1)

	err = f.as(f.owner, func(ctx *chain.Context) error {
		return f.factory.DeployStakingRewardsForPool(ctx, f.pools[0], e18(10), 0)
	})
	require.ErrorIs(t, err, ErrAlreadyDeployed)
}

func TestDeployStakingRewardsForUniswapPair(t *testing.T) {
	f := newFactoryFixture(t)
	err := f.as(f.owner, func(ctx *chain.Context) error {
		return f.factory.DeployStakingRewardsForPoolUniswapPair(ctx, f.pools[2], e18(10), 0)
	})
	require.EqualError(t, err, "deployStakingRewardsForPoolUniswapPair: staking: not an index pool")

	require.NoError(t, f.as(f.owner, func(ctx *chain.Context) error {
		return f.factory.DeployStakingRewardsForPoolUniswapPair(ctx, f.pools[0], e18(10), 30*24*60*60)
	}))
	pair, err := amm.PairFor(f.ammAddr, f.pools[0], f.weth)
	require.NoError(t, err)
	info := f.info(t, pair)
	require.Equal(t, f.factory.ComputeStakingRewardsAddress(pair), info.StakingRewards)
	require.Equal(t, uint8(TokenTypeUniswapPair), info.TokenType)
	require.Len(t, f.rec.Logs(TypeUniswapStakingRewardsAdded), 1)
	require.Equal(t, "1", f.rec.Logs(TypeStakingRewardsAdded)[0].Event.Attributes["tokenType"])

	// The pool itself is still free for a plain staking pool.
	require.Zero(t, f.info(t, f.pools[0]).StakingRewards)

	err = f.as(f.owner, func(ctx *chain.Context) error {
		return f.factory.DeployStakingRewardsForPoolUniswapPair(ctx, f.pools[0], e18(10), 0)
	})
	require.EqualError(t, err, "deployStakingRewardsForPoolUniswapPair: staking: already deployed")
}

func TestFactoryNotifyRewardAmount(t *testing.T) {
	f := newFactoryFixture(t)
	addr := f.deploy(t, f.pools[0], e18(5_184_000))

	notify := func(token crypto.Address) error {
		return f.as(f.owner, func(ctx *chain.Context) error { return f.factory.NotifyRewardAmount(ctx, token) })
	}
	err := notify(f.pools[0])
	require.EqualError(t, err, "notifyRewardAmount: staking: not ready")

	f.toGenesis()
	require.ErrorIs(t, notify(f.pools[1]), ErrNotDeployed)

	require.NoError(t, notify(f.pools[0]))
	require.Equal(t, e18(5_184_000), f.ndxBalance(t, addr))
	require.Zero(t, f.info(t, f.pools[0]).RewardAmount.Sign())
	require.NoError(t, f.chain.View(func(ctx *chain.Context) error {
		rate, err := PoolAt(addr).RewardRate(ctx)
		require.NoError(t, err)
		require.Equal(t, e18(1), rate)
		return nil
	}))

	// Pending amount already paid out.
	require.NoError(t, notify(f.pools[0]))
	require.Equal(t, e18(5_184_000), f.ndxBalance(t, addr))
	require.Len(t, f.rec.Logs(TypeRewardAdded), 1)
}

func TestFactoryNotifyEmptyPoolKeepsRewardPerTokenZero(t *testing.T) {
	f := newFactoryFixture(t)
	addr := f.deploy(t, f.pools[0], e18(100))
	f.toGenesis()
	require.NoError(t, f.as(f.owner, func(ctx *chain.Context) error {
		return f.factory.NotifyRewardAmount(ctx, f.pools[0])
	}))
	f.clock.FastForward(10_000)
	require.NoError(t, f.chain.View(func(ctx *chain.Context) error {
		rpt, err := PoolAt(addr).RewardPerToken(ctx)
		require.NoError(t, err)
		require.Zero(t, rpt.Sign())
		return nil
	}))
}

func TestFactoryNotifyInsufficientBalanceReverts(t *testing.T) {
	f := newFactoryFixture(t)
	f.deploy(t, f.pools[0], e18(200_000_000))
	f.toGenesis()
	err := f.as(f.owner, func(ctx *chain.Context) error {
		return f.factory.NotifyRewardAmount(ctx, f.pools[0])
	})
	require.ErrorIs(t, err, bank.ErrInsufficientBalance)
	require.Equal(t, e18(200_000_000), f.info(t, f.pools[0]).RewardAmount)
}

func TestFactoryNotifyRewardAmounts(t *testing.T) {
	f := newFactoryFixture(t)
	f.toGenesis()
	notifyAll := func() error {
		return f.as(f.owner, func(ctx *chain.Context) error { return f.factory.NotifyRewardAmounts(ctx) })
	}
	require.ErrorIs(t, notifyAll(), ErrNoDeploys)

	first := f.deploy(t, f.pools[0], e18(5_184_000))
	second := f.deploy(t, f.pools[1], e18(10_368_000))
	require.NoError(t, notifyAll())
	require.Equal(t, e18(5_184_000), f.ndxBalance(t, first))
	require.Equal(t, e18(10_368_000), f.ndxBalance(t, second))
	require.Len(t, f.rec.Logs(TypeRewardAdded), 2)
}

func TestIncreaseStakingRewards(t *testing.T) {
	f := newFactoryFixture(t)
	addr := f.deploy(t, f.pools[0], e18(5_184_000))
	increase := func(caller crypto.Address, amount *big.Int) error {
		return f.as(caller, func(ctx *chain.Context) error {
			return f.factory.IncreaseStakingRewards(ctx, f.pools[0], amount)
		})
	}
	require.ErrorIs(t, increase(f.owner, e18(1)), ErrNotReady)
	f.toGenesis()
	require.ErrorIs(t, increase(crypto.ContractAddress("account/stranger"), e18(1)), ErrNotOwner)
	require.ErrorIs(t, increase(f.owner, e18(1)), ErrPendingRewards)

	require.NoError(t, f.as(f.owner, func(ctx *chain.Context) error {
		return f.factory.NotifyRewardAmount(ctx, f.pools[0])
	}))
	require.ErrorIs(t, increase(f.owner, e18(1)), ErrPeriodStillRunning)

	f.clock.FastForward(DefaultRewardsDuration)
	require.NoError(t, increase(f.owner, e18(10_368_000)))
	require.Equal(t, e18(15_552_000), f.ndxBalance(t, addr))
	require.NoError(t, f.chain.View(func(ctx *chain.Context) error {
		rate, err := PoolAt(addr).RewardRate(ctx)
		require.NoError(t, err)
		require.Equal(t, e18(2), rate)
		return nil
	}))
}

func TestFactoryForwardsPoolAdministration(t *testing.T) {
	f := newFactoryFixture(t)
	addr := f.deploy(t, f.pools[0], new(big.Int))
	stray := f.pools[2]
	require.NoError(t, f.as(f.owner, func(ctx *chain.Context) error {
		return bank.At(stray).Mint(ctx, addr, e18(3))
	}))

	err := f.as(crypto.ContractAddress("account/stranger"), func(ctx *chain.Context) error {
		return f.factory.SetRewardsDuration(ctx, f.pools[0], 7*24*60*60)
	})
	require.ErrorIs(t, err, ErrNotOwner)
	err = f.as(f.owner, func(ctx *chain.Context) error {
		return f.factory.SetRewardsDuration(ctx, f.pools[1], 7*24*60*60)
	})
	require.ErrorIs(t, err, ErrNotDeployed)

	f.clock.FastForward(1)
	require.NoError(t, f.as(f.owner, func(ctx *chain.Context) error {
		return f.factory.SetRewardsDuration(ctx, f.pools[0], 7*24*60*60)
	}))
	require.NoError(t, f.as(f.owner, func(ctx *chain.Context) error {
		return f.factory.RecoverERC20(ctx, f.pools[0], stray, f.owner)
	}))
	require.NoError(t, f.chain.View(func(ctx *chain.Context) error {
		duration, err := PoolAt(addr).RewardsDuration(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(7*24*60*60), duration)
		balance, err := bank.At(stray).BalanceOf(ctx, f.owner)
		require.NoError(t, err)
		require.Equal(t, e18(3), balance)
		return nil
	}))

	next := crypto.ContractAddress("account/timelock")
	require.NoError(t, f.as(f.owner, func(ctx *chain.Context) error {
		return f.factory.TransferOwnership(ctx, next)
	}))
	err = f.as(f.owner, func(ctx *chain.Context) error {
		return f.factory.SetRewardsDuration(ctx, f.pools[0], 14*24*60*60)
	})
	require.ErrorIs(t, err, ErrNotOwner)
}
