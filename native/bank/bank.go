// Package bank provides the plain ERC20 ledger used for staking assets,
// wrapped native coin and AMM pair tokens.
package bank

import (
	"errors"
	"math/big"

	"ndxgov/core/chain"
	"ndxgov/core/events"
	"ndxgov/crypto"
	nativecommon "ndxgov/native/common"
	"ndxgov/native/erc20"
)

const Kind = "erc20"

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

var (
	ErrInsufficientBalance   = errors.New("bank: transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("bank: transfer amount exceeds allowance")
	ErrTransferFromZero      = errors.New("bank: transfer from the zero address")
	ErrTransferToZero        = errors.New("bank: transfer to the zero address")
	ErrApproveToZero         = errors.New("bank: approve to the zero address")
	ErrMintToZero            = errors.New("bank: mint to the zero address")
	ErrMintOverflow          = errors.New("bank: mint amount overflows supply")
	ErrNotOwner              = errors.New("bank: caller is not the owner")
)

const (
	SigMint              = "mint(address,uint256)"
	SigTransferOwnership = "transferOwnership(address)"
)

// Metadata describes a token at deploy time.
type Metadata struct {
	Name     string
	Symbol   string
	Decimals uint8
}

type storedMetadata struct {
	Name     string
	Symbol   string
	Decimals uint64
}

// Token is a handle on a deployed bank token.
type Token struct {
	addr crypto.Address
}

func At(addr crypto.Address) *Token { return &Token{addr: addr} }

func Register(c *chain.Chain) {
	c.Register(Kind, func(addr crypto.Address) chain.Contract { return At(addr) })
}

// Deploy creates a token at addr owned by the deploying frame.
func Deploy(ctx *chain.Context, addr crypto.Address, meta Metadata) (*Token, error) {
	if err := ctx.Deploy(addr, Kind); err != nil {
		return nil, err
	}
	t := At(addr)
	st := ctx.State()
	if err := st.KVPut(t.key("metadata"), &storedMetadata{Name: meta.Name, Symbol: meta.Symbol, Decimals: uint64(meta.Decimals)}); err != nil {
		return nil, err
	}
	if err := nativecommon.PutAddress(st, t.key("owner"), ctx.Self()); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Token) key(field string, parts ...[]byte) []byte {
	return nativecommon.Key(t.addr, field, parts...)
}

func (t *Token) Address() crypto.Address { return t.addr }

func (t *Token) Metadata(ctx *chain.Context) (Metadata, error) {
	var stored storedMetadata
	if _, err := ctx.State().KVGet(t.key("metadata"), &stored); err != nil {
		return Metadata{}, err
	}
	return Metadata{Name: stored.Name, Symbol: stored.Symbol, Decimals: uint8(stored.Decimals)}, nil
}

func (t *Token) Owner(ctx *chain.Context) (crypto.Address, error) {
	return nativecommon.GetAddress(ctx.State(), t.key("owner"))
}

func (t *Token) TotalSupply(ctx *chain.Context) (*big.Int, error) {
	return nativecommon.GetBig(ctx.State(), t.key("supply"))
}

func (t *Token) BalanceOf(ctx *chain.Context, owner crypto.Address) (*big.Int, error) {
	return nativecommon.GetBig(ctx.State(), t.key("balance", owner.Bytes()))
}

func (t *Token) Allowance(ctx *chain.Context, owner, spender crypto.Address) (*big.Int, error) {
	return nativecommon.GetBig(ctx.State(), t.key("allowance", owner.Bytes(), spender.Bytes()))
}

func (t *Token) Transfer(ctx *chain.Context, to crypto.Address, amount *big.Int) error {
	return ctx.Invoke(t.addr, erc20.SigTransfer, to, amount)
}

func (t *Token) TransferFrom(ctx *chain.Context, from, to crypto.Address, amount *big.Int) error {
	return ctx.Invoke(t.addr, erc20.SigTransferFrom, from, to, amount)
}

func (t *Token) Approve(ctx *chain.Context, spender crypto.Address, amount *big.Int) error {
	return ctx.Invoke(t.addr, erc20.SigApprove, spender, amount)
}

func (t *Token) Mint(ctx *chain.Context, to crypto.Address, amount *big.Int) error {
	return ctx.Invoke(t.addr, SigMint, to, amount)
}

func (t *Token) TransferOwnership(ctx *chain.Context, owner crypto.Address) error {
	return ctx.Invoke(t.addr, SigTransferOwnership, owner)
}

func (t *Token) transfer(ctx *chain.Context, from, to crypto.Address, amount *big.Int) error {
	if from.IsZero() {
		return ErrTransferFromZero
	}
	if to.IsZero() {
		return ErrTransferToZero
	}
	st := ctx.State()
	fromBal, err := t.BalanceOf(ctx, from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if err := nativecommon.PutBig(st, t.key("balance", from.Bytes()), fromBal.Sub(fromBal, amount)); err != nil {
		return err
	}
	toBal, err := t.BalanceOf(ctx, to)
	if err != nil {
		return err
	}
	if err := nativecommon.PutBig(st, t.key("balance", to.Bytes()), toBal.Add(toBal, amount)); err != nil {
		return err
	}
	ctx.Emit(events.Transfer{From: from, To: to, Amount: amount}.Event())
	return nil
}

func (t *Token) approve(ctx *chain.Context, owner, spender crypto.Address, amount *big.Int) error {
	if spender.IsZero() {
		return ErrApproveToZero
	}
	if err := nativecommon.PutBig(ctx.State(), t.key("allowance", owner.Bytes(), spender.Bytes()), amount); err != nil {
		return err
	}
	ctx.Emit(events.Approval{Owner: owner, Spender: spender, Amount: amount}.Event())
	return nil
}

func (t *Token) transferFrom(ctx *chain.Context, from, to crypto.Address, amount *big.Int) error {
	spender := ctx.Caller()
	if err := t.transfer(ctx, from, to, amount); err != nil {
		return err
	}
	allowance, err := t.Allowance(ctx, from, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(maxUint256) == 0 {
		return nil
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	return t.approve(ctx, from, spender, allowance.Sub(allowance, amount))
}

func (t *Token) mint(ctx *chain.Context, to crypto.Address, amount *big.Int) error {
	owner, err := t.Owner(ctx)
	if err != nil {
		return err
	}
	if ctx.Caller() != owner {
		return ErrNotOwner
	}
	if to.IsZero() {
		return ErrMintToZero
	}
	supply, err := t.TotalSupply(ctx)
	if err != nil {
		return err
	}
	supply.Add(supply, amount)
	if supply.Cmp(maxUint256) > 0 {
		return ErrMintOverflow
	}
	st := ctx.State()
	if err := nativecommon.PutBig(st, t.key("supply"), supply); err != nil {
		return err
	}
	balance, err := t.BalanceOf(ctx, to)
	if err != nil {
		return err
	}
	if err := nativecommon.PutBig(st, t.key("balance", to.Bytes()), balance.Add(balance, amount)); err != nil {
		return err
	}
	ctx.Emit(events.Transfer{From: crypto.Address{}, To: to, Amount: amount}.Event())
	return nil
}

func (t *Token) transferOwnership(ctx *chain.Context, next crypto.Address) error {
	owner, err := t.Owner(ctx)
	if err != nil {
		return err
	}
	if ctx.Caller() != owner {
		return ErrNotOwner
	}
	return nativecommon.PutAddress(ctx.State(), t.key("owner"), next)
}

// Invoke implements chain.Contract.
func (t *Token) Invoke(ctx *chain.Context, method string, args chain.Args) error {
	switch method {
	case erc20.SigTransfer:
		to, amount, err := addressAmount(args, 0)
		if err != nil {
			return err
		}
		return t.transfer(ctx, ctx.Caller(), to, amount)
	case erc20.SigTransferFrom:
		from, err := args.Address(0)
		if err != nil {
			return err
		}
		to, amount, err := addressAmount(args, 1)
		if err != nil {
			return err
		}
		return t.transferFrom(ctx, from, to, amount)
	case erc20.SigApprove:
		spender, amount, err := addressAmount(args, 0)
		if err != nil {
			return err
		}
		return t.approve(ctx, ctx.Caller(), spender, amount)
	case SigMint:
		to, amount, err := addressAmount(args, 0)
		if err != nil {
			return err
		}
		return t.mint(ctx, to, amount)
	case SigTransferOwnership:
		next, err := args.Address(0)
		if err != nil {
			return err
		}
		return t.transferOwnership(ctx, next)
	}
	return chain.Dispatcher(nil).Invoke(ctx, method, args)
}

func addressAmount(args chain.Args, i int) (crypto.Address, *big.Int, error) {
	addr, err := args.Address(i)
	if err != nil {
		return crypto.Address{}, nil, err
	}
	amount, err := args.Big(i + 1)
	if err != nil {
		return crypto.Address{}, nil, err
	}
	return addr, amount, nil
}
