package vesting

import (
	"math/big"

	"ndxgov/core/events"
	"ndxgov/core/types"
	"ndxgov/crypto"
)

const (
	TypeClaimed          = "vesting.claimed"
	TypeRecipientChanged = "vesting.recipient_changed"
	TypeTerminated       = "vesting.terminated"
	TypeDripped          = "vesting.dripped"
)

func claimed(recipient crypto.Address, amount *big.Int) *types.Event {
	return &types.Event{Type: TypeClaimed, Attributes: map[string]string{
		"recipient": events.FormatAddress(recipient),
		"amount":    events.FormatAmount(amount),
	}}
}

func recipientChanged(recipient crypto.Address) *types.Event {
	return &types.Event{Type: TypeRecipientChanged, Attributes: map[string]string{
		"recipient": events.FormatAddress(recipient),
	}}
}

func vesterTerminated(terminator crypto.Address, remainder *big.Int) *types.Event {
	return &types.Event{Type: TypeTerminated, Attributes: map[string]string{
		"terminator": events.FormatAddress(terminator),
		"remainder":  events.FormatAmount(remainder),
	}}
}

func dripped(target crypto.Address, amount *big.Int) *types.Event {
	return &types.Event{Type: TypeDripped, Attributes: map[string]string{
		"target": events.FormatAddress(target),
		"amount": events.FormatAmount(amount),
	}}
}
