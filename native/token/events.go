package token

import (
	"math/big"

	"ndxgov/core/events"
	"ndxgov/core/types"
	"ndxgov/crypto"
)

const (
	TypeDelegateChanged      = "ndx.delegate_changed"
	TypeDelegateVotesChanged = "ndx.delegate_votes_changed"
	TypeMinterChanged        = "ndx.minter_changed"
)

func delegateChanged(delegator, from, to crypto.Address) *types.Event {
	return &types.Event{Type: TypeDelegateChanged, Attributes: map[string]string{
		"delegator":    events.FormatAddress(delegator),
		"fromDelegate": events.FormatAddress(from),
		"toDelegate":   events.FormatAddress(to),
	}}
}

func delegateVotesChanged(delegate crypto.Address, previous, next *big.Int) *types.Event {
	return &types.Event{Type: TypeDelegateVotesChanged, Attributes: map[string]string{
		"delegate":        events.FormatAddress(delegate),
		"previousBalance": events.FormatAmount(previous),
		"newBalance":      events.FormatAmount(next),
	}}
}

func minterChanged(minter, next crypto.Address) *types.Event {
	return &types.Event{Type: TypeMinterChanged, Attributes: map[string]string{
		"minter":    events.FormatAddress(minter),
		"newMinter": events.FormatAddress(next),
	}}
}
