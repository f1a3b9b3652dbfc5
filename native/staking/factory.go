package staking

import (
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"ndxgov/core/chain"
	"ndxgov/crypto"
	"ndxgov/native/amm"
	nativecommon "ndxgov/native/common"
	"ndxgov/native/erc20"
	"ndxgov/native/indexpool"
)

const (
	FactoryKind = "staking.factory"

	// DefaultRewardsDuration applies when a pool is deployed with duration 0.
	DefaultRewardsDuration uint64 = 60 * 24 * 60 * 60
)

// ImplementationID identifies the pool implementation in CREATE2 derivations.
var ImplementationID = ethcrypto.Keccak256([]byte("StakingRewards.sol"))

// TokenType records what a pool stakes.
type TokenType uint8

const (
	TokenTypeIndexPool TokenType = iota
	TokenTypeUniswapPair
)

func (t TokenType) String() string {
	switch t {
	case TokenTypeIndexPool:
		return "IndexPool"
	case TokenTypeUniswapPair:
		return "UniswapPair"
	default:
		return "Unknown"
	}
}

const (
	opDeployForPool     = "deployStakingRewardsForPool"
	opDeployForPair     = "deployStakingRewardsForPoolUniswapPair"
	opNotify            = "notifyRewardAmount"
	opNotifyAll         = "notifyRewardAmounts"
	opIncrease          = "increaseStakingRewards"
	opSetDuration       = "setRewardsDuration"
	opGetStakingRewards = "getStakingRewards"
)

var (
	ErrNotOwner           = errors.New("staking: caller is not the factory owner")
	ErrNotIndexPool       = errors.New("staking: not an index pool")
	ErrAlreadyDeployed    = errors.New("staking: already deployed")
	ErrNotDeployed        = errors.New("staking: not deployed")
	ErrNotReady           = errors.New("staking: not ready")
	ErrNoDeploys          = errors.New("staking: called before any deploys")
	ErrPendingRewards     = errors.New("staking: can not add rewards while pending rewards exist")
	ErrPeriodStillRunning = errors.New("staking: previous rewards period must be complete to add rewards")
)

func factoryErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}

// FactoryConfig is fixed at deploy.
type FactoryConfig struct {
	RewardsToken          crypto.Address
	StakingRewardsGenesis uint64
	PoolRegistry          crypto.Address
	AMMFactory            crypto.Address
	WrappedNative         crypto.Address
}

// RewardsInfo is the factory's record of a deployed pool. RewardAmount is
// the reward still waiting for notifyRewardAmount.
type RewardsInfo struct {
	StakingRewards crypto.Address
	RewardAmount   *big.Int
	TokenType      uint8
}

// Factory is a handle on a deployed staking rewards factory.
type Factory struct {
	addr crypto.Address
}

func FactoryAt(addr crypto.Address) *Factory { return &Factory{addr: addr} }

// Register binds the factory and pool kinds.
func Register(c *chain.Chain) {
	c.Register(FactoryKind, func(addr crypto.Address) chain.Contract { return FactoryAt(addr) })
	c.Register(PoolKind, func(addr crypto.Address) chain.Contract { return PoolAt(addr) })
}

// DeployFactory creates a factory owned by the deploying frame.
func DeployFactory(ctx *chain.Context, addr crypto.Address, cfg FactoryConfig) (*Factory, error) {
	if err := ctx.RequireKind(cfg.PoolRegistry, indexpool.Kind); err != nil {
		return nil, err
	}
	if _, err := erc20.At(ctx, cfg.RewardsToken); err != nil {
		return nil, err
	}
	if err := ctx.Deploy(addr, FactoryKind); err != nil {
		return nil, err
	}
	f := FactoryAt(addr)
	st := ctx.State()
	if err := st.KVPut(f.key("config"), &cfg); err != nil {
		return nil, err
	}
	if err := nativecommon.PutAddress(st, f.key("owner"), ctx.Self()); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Factory) key(field string, parts ...[]byte) []byte {
	return nativecommon.Key(f.addr, field, parts...)
}

func (f *Factory) Address() crypto.Address { return f.addr }

func (f *Factory) Config(ctx *chain.Context) (FactoryConfig, error) {
	var cfg FactoryConfig
	if _, err := ctx.State().KVGet(f.key("config"), &cfg); err != nil {
		return FactoryConfig{}, err
	}
	return cfg, nil
}

func (f *Factory) Owner(ctx *chain.Context) (crypto.Address, error) {
	return nativecommon.GetAddress(ctx.State(), f.key("owner"))
}

// ComputeStakingRewardsAddress derives the pool address for stakingToken
// whether or not it has been deployed.
func (f *Factory) ComputeStakingRewardsAddress(stakingToken crypto.Address) crypto.Address {
	salt := ethcrypto.Keccak256Hash(stakingToken.Bytes())
	return crypto.CreateAddress2(f.addr, salt, ImplementationID)
}

// StakingRewardsInfo returns the record for stakingToken. A zero
// StakingRewards means no pool was deployed.
func (f *Factory) StakingRewardsInfo(ctx *chain.Context, stakingToken crypto.Address) (*RewardsInfo, error) {
	info := &RewardsInfo{RewardAmount: new(big.Int)}
	if _, err := ctx.State().KVGet(f.key("info", stakingToken.Bytes()), info); err != nil {
		return nil, err
	}
	if info.RewardAmount == nil {
		info.RewardAmount = new(big.Int)
	}
	return info, nil
}

func (f *Factory) GetStakingRewards(ctx *chain.Context, stakingToken crypto.Address) (crypto.Address, error) {
	info, err := f.StakingRewardsInfo(ctx, stakingToken)
	if err != nil {
		return crypto.Address{}, err
	}
	if info.StakingRewards.IsZero() {
		return crypto.Address{}, factoryErr(opGetStakingRewards, ErrNotDeployed)
	}
	return info.StakingRewards, nil
}

// GetStakingTokens lists staking tokens in deployment order.
func (f *Factory) GetStakingTokens(ctx *chain.Context) ([]crypto.Address, error) {
	var raw [][]byte
	if err := ctx.State().KVGetList(f.key("tokens"), &raw); err != nil {
		return nil, err
	}
	out := make([]crypto.Address, len(raw))
	for i, b := range raw {
		out[i] = crypto.BytesToAddress(b)
	}
	return out, nil
}

func (f *Factory) StakingTokens(ctx *chain.Context, i uint64) (crypto.Address, error) {
	tokens, err := f.GetStakingTokens(ctx)
	if err != nil {
		return crypto.Address{}, err
	}
	if i >= uint64(len(tokens)) {
		return crypto.Address{}, fmt.Errorf("%w: staking token index %d out of range", chain.ErrBadArgument, i)
	}
	return tokens[i], nil
}

func (f *Factory) DeployStakingRewardsForPool(ctx *chain.Context, indexPool crypto.Address, rewardAmount *big.Int, duration uint64) error {
	return ctx.Invoke(f.addr, sigDeployForPool, indexPool, rewardAmount, duration)
}

func (f *Factory) DeployStakingRewardsForPoolUniswapPair(ctx *chain.Context, indexPool crypto.Address, rewardAmount *big.Int, duration uint64) error {
	return ctx.Invoke(f.addr, sigDeployForPair, indexPool, rewardAmount, duration)
}

func (f *Factory) NotifyRewardAmount(ctx *chain.Context, stakingToken crypto.Address) error {
	return ctx.Invoke(f.addr, sigFactoryNotify, stakingToken)
}

func (f *Factory) NotifyRewardAmounts(ctx *chain.Context) error {
	return ctx.Invoke(f.addr, sigNotifyAll)
}

func (f *Factory) IncreaseStakingRewards(ctx *chain.Context, stakingToken crypto.Address, amount *big.Int) error {
	return ctx.Invoke(f.addr, sigIncrease, stakingToken, amount)
}

func (f *Factory) SetRewardsDuration(ctx *chain.Context, stakingToken crypto.Address, duration uint64) error {
	return ctx.Invoke(f.addr, sigFactorySetDuration, stakingToken, duration)
}

func (f *Factory) RecoverERC20(ctx *chain.Context, stakingToken, token, recipient crypto.Address) error {
	return ctx.Invoke(f.addr, sigFactoryRecover, stakingToken, token, recipient)
}

func (f *Factory) TransferOwnership(ctx *chain.Context, owner crypto.Address) error {
	return ctx.Invoke(f.addr, sigTransferOwnership, owner)
}

func (f *Factory) onlyOwner(ctx *chain.Context) error {
	owner, err := f.Owner(ctx)
	if err != nil {
		return err
	}
	if ctx.Caller() != owner {
		return ErrNotOwner
	}
	return nil
}

func (f *Factory) deploy(ctx *chain.Context, op string, indexPool crypto.Address, rewardAmount *big.Int, duration uint64, tokenType TokenType) error {
	if err := f.onlyOwner(ctx); err != nil {
		return err
	}
	cfg, err := f.Config(ctx)
	if err != nil {
		return err
	}
	recognised, err := indexpool.At(cfg.PoolRegistry).IsRecognizedPool(ctx, indexPool)
	if err != nil {
		return err
	}
	if !recognised {
		return factoryErr(op, ErrNotIndexPool)
	}
	stakingToken := indexPool
	if tokenType == TokenTypeUniswapPair {
		if stakingToken, err = amm.PairFor(cfg.AMMFactory, indexPool, cfg.WrappedNative); err != nil {
			return err
		}
	}
	info, err := f.StakingRewardsInfo(ctx, stakingToken)
	if err != nil {
		return err
	}
	if !info.StakingRewards.IsZero() {
		return factoryErr(op, ErrAlreadyDeployed)
	}
	if duration == 0 {
		duration = DefaultRewardsDuration
	}

	poolAddr := f.ComputeStakingRewardsAddress(stakingToken)
	pool, err := DeployPool(ctx, poolAddr, f.addr, cfg.RewardsToken)
	if err != nil {
		return err
	}
	if err := pool.Initialize(ctx, stakingToken, duration); err != nil {
		return err
	}
	info = &RewardsInfo{StakingRewards: poolAddr, RewardAmount: new(big.Int).Set(rewardAmount), TokenType: uint8(tokenType)}
	if err := ctx.State().KVPut(f.key("info", stakingToken.Bytes()), info); err != nil {
		return err
	}
	if err := ctx.State().KVAppend(f.key("tokens"), stakingToken.Bytes()); err != nil {
		return err
	}
	ctx.Emit(stakingRewardsAdded(stakingToken, poolAddr, tokenType))
	if tokenType == TokenTypeUniswapPair {
		ctx.Emit(uniswapStakingRewardsAdded(indexPool, stakingToken, poolAddr))
	} else {
		ctx.Emit(indexPoolStakingRewardsAdded(indexPool, poolAddr))
	}
	return nil
}

func (f *Factory) requireGenesis(ctx *chain.Context, op string) (FactoryConfig, error) {
	cfg, err := f.Config(ctx)
	if err != nil {
		return FactoryConfig{}, err
	}
	if ctx.Timestamp() < cfg.StakingRewardsGenesis {
		return FactoryConfig{}, factoryErr(op, ErrNotReady)
	}
	return cfg, nil
}

func (f *Factory) deployed(ctx *chain.Context, op string, stakingToken crypto.Address) (*RewardsInfo, error) {
	info, err := f.StakingRewardsInfo(ctx, stakingToken)
	if err != nil {
		return nil, err
	}
	if info.StakingRewards.IsZero() {
		return nil, factoryErr(op, ErrNotDeployed)
	}
	return info, nil
}

func (f *Factory) notifyRewardAmount(ctx *chain.Context, stakingToken crypto.Address) error {
	cfg, err := f.requireGenesis(ctx, opNotify)
	if err != nil {
		return err
	}
	info, err := f.deployed(ctx, opNotify, stakingToken)
	if err != nil {
		return err
	}
	if info.RewardAmount.Sign() == 0 {
		return nil
	}
	reward := info.RewardAmount
	info.RewardAmount = new(big.Int)
	if err := ctx.State().KVPut(f.key("info", stakingToken.Bytes()), info); err != nil {
		return err
	}
	if err := erc20.Transfer(ctx, cfg.RewardsToken, info.StakingRewards, reward); err != nil {
		return err
	}
	return PoolAt(info.StakingRewards).NotifyRewardAmount(ctx, reward)
}

func (f *Factory) notifyRewardAmounts(ctx *chain.Context) error {
	tokens, err := f.GetStakingTokens(ctx)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return factoryErr(opNotifyAll, ErrNoDeploys)
	}
	for _, token := range tokens {
		if err := f.notifyRewardAmount(ctx, token); err != nil {
			return err
		}
	}
	return nil
}

func (f *Factory) increaseStakingRewards(ctx *chain.Context, stakingToken crypto.Address, amount *big.Int) error {
	if err := f.onlyOwner(ctx); err != nil {
		return err
	}
	cfg, err := f.requireGenesis(ctx, opIncrease)
	if err != nil {
		return err
	}
	info, err := f.deployed(ctx, opIncrease, stakingToken)
	if err != nil {
		return err
	}
	if info.RewardAmount.Sign() != 0 {
		return factoryErr(opIncrease, ErrPendingRewards)
	}
	pool := PoolAt(info.StakingRewards)
	finish, err := pool.PeriodFinish(ctx)
	if err != nil {
		return err
	}
	if ctx.Timestamp() < finish {
		return factoryErr(opIncrease, ErrPeriodStillRunning)
	}
	if err := erc20.Transfer(ctx, cfg.RewardsToken, info.StakingRewards, amount); err != nil {
		return err
	}
	return pool.NotifyRewardAmount(ctx, amount)
}

func (f *Factory) setRewardsDuration(ctx *chain.Context, stakingToken crypto.Address, duration uint64) error {
	if err := f.onlyOwner(ctx); err != nil {
		return err
	}
	info, err := f.deployed(ctx, opSetDuration, stakingToken)
	if err != nil {
		return err
	}
	return PoolAt(info.StakingRewards).SetRewardsDuration(ctx, duration)
}

func (f *Factory) recoverERC20(ctx *chain.Context, stakingToken, token, recipient crypto.Address) error {
	if err := f.onlyOwner(ctx); err != nil {
		return err
	}
	info, err := f.deployed(ctx, "recoverERC20", stakingToken)
	if err != nil {
		return err
	}
	return PoolAt(info.StakingRewards).RecoverERC20(ctx, token, recipient)
}
