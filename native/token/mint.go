package token

import (
	"errors"
	"math/big"

	"ndxgov/core/chain"
	"ndxgov/core/events"
	"ndxgov/crypto"
	nativecommon "ndxgov/native/common"
)

var (
	ErrOnlyMinterCanSet    = errors.New("token: only the minter can change the minter address")
	ErrOnlyMinter          = errors.New("token: only the minter can mint")
	ErrMintNotAllowedYet   = errors.New("token: minting not allowed yet")
	ErrMintToZero          = errors.New("token: cannot mint to the zero address")
	ErrMintOverflow        = errors.New("token: mint amount exceeds 96 bits")
	ErrMintCapExceeded     = errors.New("token: exceeded mint cap")
	ErrSupplyOverflow      = errors.New("token: total supply exceeds 96 bits")
	ErrMintBalanceOverflow = errors.New("token: mint amount overflows balance")
)

func (t *Token) setMinter(ctx *chain.Context, minter crypto.Address) error {
	current, err := t.Minter(ctx)
	if err != nil {
		return err
	}
	if ctx.Caller() != current {
		return ErrOnlyMinterCanSet
	}
	if err := nativecommon.PutAddress(ctx.State(), t.key("minter"), minter); err != nil {
		return err
	}
	ctx.Emit(minterChanged(current, minter))
	return nil
}

func (t *Token) mint(ctx *chain.Context, dst crypto.Address, rawAmount *big.Int) error {
	minter, err := t.Minter(ctx)
	if err != nil {
		return err
	}
	if ctx.Caller() != minter {
		return ErrOnlyMinter
	}
	allowedAfter, err := t.MintingAllowedAfter(ctx)
	if err != nil {
		return err
	}
	if ctx.Timestamp() < allowedAfter {
		return ErrMintNotAllowedYet
	}
	if dst.IsZero() {
		return ErrMintToZero
	}
	st := ctx.State()
	if err := nativecommon.PutUint64(st, t.key("minting_allowed_after"), ctx.Timestamp()+MinimumTimeBetweenMints); err != nil {
		return err
	}
	amount, err := safe96(rawAmount, ErrMintOverflow)
	if err != nil {
		return err
	}
	supply, err := t.TotalSupply(ctx)
	if err != nil {
		return err
	}
	limit := new(big.Int).Mul(supply, big.NewInt(MintCapPercent))
	limit.Quo(limit, big.NewInt(100))
	if amount.Cmp(limit) > 0 {
		return ErrMintCapExceeded
	}
	supply.Add(supply, amount)
	if supply.Cmp(maxUint96) > 0 {
		return ErrSupplyOverflow
	}
	if err := nativecommon.PutBig(st, t.key("supply"), supply); err != nil {
		return err
	}
	balance, err := t.BalanceOf(ctx, dst)
	if err != nil {
		return err
	}
	balance.Add(balance, amount)
	if balance.Cmp(maxUint96) > 0 {
		return ErrMintBalanceOverflow
	}
	if err := nativecommon.PutBig(st, t.key("balance", dst.Bytes()), balance); err != nil {
		return err
	}
	ctx.Emit(events.Transfer{From: crypto.Address{}, To: dst, Amount: amount}.Event())
	delegatee, err := t.Delegates(ctx, dst)
	if err != nil {
		return err
	}
	return t.moveDelegates(ctx, crypto.Address{}, delegatee, amount)
}
