package staking

import (
	"math/big"
	"strconv"

	"ndxgov/core/events"
	"ndxgov/core/types"
	"ndxgov/crypto"
)

const (
	TypeStaked                 = "staking.staked"
	TypeWithdrawn              = "staking.withdrawn"
	TypeRewardPaid             = "staking.reward_paid"
	TypeRewardAdded            = "staking.reward_added"
	TypeRewardsDurationUpdated = "staking.rewards_duration_updated"
	TypeRecovered              = "staking.recovered"

	TypeStakingRewardsAdded          = "staking.rewards_added"
	TypeIndexPoolStakingRewardsAdded = "staking.index_pool_rewards_added"
	TypeUniswapStakingRewardsAdded   = "staking.uniswap_rewards_added"
)

func accountAmount(evtType, field string, account crypto.Address, amount *big.Int) *types.Event {
	return &types.Event{Type: evtType, Attributes: map[string]string{
		"user": events.FormatAddress(account),
		field:  events.FormatAmount(amount),
	}}
}

func staked(account crypto.Address, amount *big.Int) *types.Event {
	return accountAmount(TypeStaked, "amount", account, amount)
}

func withdrawn(account crypto.Address, amount *big.Int) *types.Event {
	return accountAmount(TypeWithdrawn, "amount", account, amount)
}

func rewardPaid(account crypto.Address, reward *big.Int) *types.Event {
	return accountAmount(TypeRewardPaid, "reward", account, reward)
}

func rewardAdded(reward *big.Int) *types.Event {
	return &types.Event{Type: TypeRewardAdded, Attributes: map[string]string{
		"reward": events.FormatAmount(reward),
	}}
}

func rewardsDurationUpdated(duration uint64) *types.Event {
	return &types.Event{Type: TypeRewardsDurationUpdated, Attributes: map[string]string{
		"newDuration": strconv.FormatUint(duration, 10),
	}}
}

func recovered(token, recipient crypto.Address, amount *big.Int) *types.Event {
	return &types.Event{Type: TypeRecovered, Attributes: map[string]string{
		"token":     events.FormatAddress(token),
		"recipient": events.FormatAddress(recipient),
		"amount":    events.FormatAmount(amount),
	}}
}

func stakingRewardsAdded(stakingToken, stakingRewards crypto.Address, tokenType TokenType) *types.Event {
	return &types.Event{Type: TypeStakingRewardsAdded, Attributes: map[string]string{
		"stakingToken":   events.FormatAddress(stakingToken),
		"stakingRewards": events.FormatAddress(stakingRewards),
		"tokenType":      strconv.Itoa(int(tokenType)),
	}}
}

func indexPoolStakingRewardsAdded(pool, stakingRewards crypto.Address) *types.Event {
	return &types.Event{Type: TypeIndexPoolStakingRewardsAdded, Attributes: map[string]string{
		"indexPool":      events.FormatAddress(pool),
		"stakingRewards": events.FormatAddress(stakingRewards),
	}}
}

func uniswapStakingRewardsAdded(pool, pair, stakingRewards crypto.Address) *types.Event {
	return &types.Event{Type: TypeUniswapStakingRewardsAdded, Attributes: map[string]string{
		"indexPool":      events.FormatAddress(pool),
		"stakingToken":   events.FormatAddress(pair),
		"stakingRewards": events.FormatAddress(stakingRewards),
	}}
}
