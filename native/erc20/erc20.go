// Package erc20 is the token surface every other contract consumes. Reads go
// straight to the token's Go handle; writes are dispatched as calls so the
// token observes the calling contract as msg.sender.
package erc20

import (
	"errors"
	"fmt"
	"math/big"

	"ndxgov/core/chain"
	"ndxgov/crypto"
)

const (
	SigTransfer     = "transfer(address,uint256)"
	SigTransferFrom = "transferFrom(address,address,uint256)"
	SigApprove      = "approve(address,uint256)"
)

var ErrNotToken = errors.New("erc20: contract is not a token")

// Reader is implemented by every token kind.
type Reader interface {
	TotalSupply(ctx *chain.Context) (*big.Int, error)
	BalanceOf(ctx *chain.Context, owner crypto.Address) (*big.Int, error)
	Allowance(ctx *chain.Context, owner, spender crypto.Address) (*big.Int, error)
}

// At resolves the token deployed at addr.
func At(ctx *chain.Context, addr crypto.Address) (Reader, error) {
	contract, kind, err := ctx.Lookup(addr)
	if err != nil {
		return nil, err
	}
	token, ok := contract.(Reader)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotToken, addr, kind)
	}
	return token, nil
}

// BalanceOf reads owner's balance of token.
func BalanceOf(ctx *chain.Context, token, owner crypto.Address) (*big.Int, error) {
	reader, err := At(ctx, token)
	if err != nil {
		return nil, err
	}
	return reader.BalanceOf(ctx, owner)
}

// Transfer sends amount of token from the executing contract to to.
func Transfer(ctx *chain.Context, token, to crypto.Address, amount *big.Int) error {
	return ctx.Invoke(token, SigTransfer, to, amount)
}

// TransferFrom moves amount of token from from to to using the executing
// contract's allowance.
func TransferFrom(ctx *chain.Context, token, from, to crypto.Address, amount *big.Int) error {
	return ctx.Invoke(token, SigTransferFrom, from, to, amount)
}

// Approve sets the executing contract's allowance for spender.
func Approve(ctx *chain.Context, token, spender crypto.Address, amount *big.Int) error {
	return ctx.Invoke(token, SigApprove, spender, amount)
}
