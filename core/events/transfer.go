package events

import (
	"math/big"

	"ndxgov/core/types"
	"ndxgov/crypto"
)

const (
	// TypeTransfer is emitted for every token balance movement, including mints.
	TypeTransfer = "erc20.transfer"
	// TypeApproval is emitted when an allowance is set or consumed.
	TypeApproval = "erc20.approval"
)

type Transfer struct {
	From   crypto.Address
	To     crypto.Address
	Amount *big.Int
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	return &types.Event{Type: TypeTransfer, Attributes: map[string]string{
		"from":   FormatAddress(e.From),
		"to":     FormatAddress(e.To),
		"amount": FormatAmount(e.Amount),
	}}
}

type Approval struct {
	Owner   crypto.Address
	Spender crypto.Address
	Amount  *big.Int
}

func (Approval) EventType() string { return TypeApproval }

func (e Approval) Event() *types.Event {
	return &types.Event{Type: TypeApproval, Attributes: map[string]string{
		"owner":   FormatAddress(e.Owner),
		"spender": FormatAddress(e.Spender),
		"amount":  FormatAmount(e.Amount),
	}}
}
