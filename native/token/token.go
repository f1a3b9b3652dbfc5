// Package token implements Ndx, the fixed-supply governance token. Balances
// and allowances are 96-bit, voting weight follows each holder's delegatee and
// is recorded in per-delegatee checkpoints that governance reads back by
// block height.
package token

import (
	"errors"
	"math/big"

	"ndxgov/core/chain"
	"ndxgov/core/events"
	"ndxgov/crypto"
	nativecommon "ndxgov/native/common"
)

const (
	Kind     = "ndx"
	Name     = "Indexed"
	Symbol   = "NDX"
	Decimals = 18

	// MintCapPercent bounds a single mint relative to total supply.
	MintCapPercent = 10
	// MinimumTimeBetweenMints is the cooldown between mints, in seconds.
	MinimumTimeBetweenMints uint64 = 90 * 24 * 60 * 60
)

var (
	// InitialSupply is 10,000,000 tokens with 18 decimals.
	InitialSupply = new(big.Int).Mul(big.NewInt(10_000_000), new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil))

	maxUint96  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 96), big.NewInt(1))
	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

var (
	ErrApproveOverflow     = errors.New("token: approve amount exceeds 96 bits")
	ErrTransferOverflow    = errors.New("token: transfer amount exceeds 96 bits")
	ErrAllowanceExceeded   = errors.New("token: transfer amount exceeds spender allowance")
	ErrTransferFromZero    = errors.New("token: cannot transfer from the zero address")
	ErrTransferToZero      = errors.New("token: cannot transfer to the zero address")
	ErrInsufficientBalance = errors.New("token: transfer amount exceeds balance")
	ErrBalanceOverflow     = errors.New("token: transfer amount overflows")
	ErrMintingTooEarly     = errors.New("token: minting can only begin after deployment")
)

// Token is a handle on a deployed Ndx contract.
type Token struct {
	addr crypto.Address
}

// At binds the token deployed at addr.
func At(addr crypto.Address) *Token {
	return &Token{addr: addr}
}

// Register installs the contract kind on c.
func Register(c *chain.Chain) {
	c.Register(Kind, func(addr crypto.Address) chain.Contract { return At(addr) })
}

func (t *Token) Address() crypto.Address { return t.addr }

// Deploy creates the token at addr, credits the full initial supply to account
// and records its voting weight. Minting is disabled until
// mintingAllowedAfter.
func Deploy(ctx *chain.Context, addr, account, minter crypto.Address, mintingAllowedAfter uint64) (*Token, error) {
	if mintingAllowedAfter < ctx.Timestamp() {
		return nil, ErrMintingTooEarly
	}
	if account.IsZero() {
		return nil, ErrTransferToZero
	}
	if err := ctx.Deploy(addr, Kind); err != nil {
		return nil, err
	}
	t := At(addr)
	self := ctx.Enter(addr)
	st := self.State()
	if err := nativecommon.PutBig(st, t.key("supply"), InitialSupply); err != nil {
		return nil, err
	}
	if err := nativecommon.PutBig(st, t.key("balance", account.Bytes()), InitialSupply); err != nil {
		return nil, err
	}
	self.Emit(events.Transfer{From: crypto.Address{}, To: account, Amount: InitialSupply}.Event())
	if err := nativecommon.PutAddress(st, t.key("minter"), minter); err != nil {
		return nil, err
	}
	self.Emit(minterChanged(crypto.Address{}, minter))
	if err := nativecommon.PutUint64(st, t.key("minting_allowed_after"), mintingAllowedAfter); err != nil {
		return nil, err
	}
	if err := t.moveDelegates(self, crypto.Address{}, account, InitialSupply); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Token) key(field string, parts ...[]byte) []byte {
	return nativecommon.Key(t.addr, field, parts...)
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

// Nonces returns the next permit and delegateBySig nonce of owner.
func (t *Token) Nonces(ctx *chain.Context, owner crypto.Address) (uint64, error) {
	return nativecommon.GetUint64(ctx.State(), t.key("nonce", owner.Bytes()))
}

func (t *Token) Minter(ctx *chain.Context) (crypto.Address, error) {
	return nativecommon.GetAddress(ctx.State(), t.key("minter"))
}

func (t *Token) MintingAllowedAfter(ctx *chain.Context) (uint64, error) {
	return nativecommon.GetUint64(ctx.State(), t.key("minting_allowed_after"))
}

// DomainSeparator is the EIP-712 domain of this deployment.
func (t *Token) DomainSeparator(ctx *chain.Context) [32]byte {
	return crypto.DomainSeparator(Name, ctx.ChainID(), t.addr)
}

// Caller-frame entry points. Each is dispatched as a call so the token sees
// the frame's contract (or account) as msg.sender.

func (t *Token) Transfer(ctx *chain.Context, to crypto.Address, amount *big.Int) error {
	return ctx.Invoke(t.addr, sigTransfer, to, amount)
}

func (t *Token) TransferFrom(ctx *chain.Context, from, to crypto.Address, amount *big.Int) error {
	return ctx.Invoke(t.addr, sigTransferFrom, from, to, amount)
}

func (t *Token) Approve(ctx *chain.Context, spender crypto.Address, amount *big.Int) error {
	return ctx.Invoke(t.addr, sigApprove, spender, amount)
}

func (t *Token) Delegate(ctx *chain.Context, delegatee crypto.Address) error {
	return ctx.Invoke(t.addr, sigDelegate, delegatee)
}

func (t *Token) Mint(ctx *chain.Context, dst crypto.Address, amount *big.Int) error {
	return ctx.Invoke(t.addr, sigMint, dst, amount)
}

func (t *Token) SetMinter(ctx *chain.Context, minter crypto.Address) error {
	return ctx.Invoke(t.addr, sigSetMinter, minter)
}

func (t *Token) Permit(ctx *chain.Context, owner, spender crypto.Address, value, deadline *big.Int, v uint8, r, s [32]byte) error {
	return ctx.Invoke(t.addr, sigPermit, owner, spender, value, deadline, v, r, s)
}

func (t *Token) DelegateBySig(ctx *chain.Context, delegatee crypto.Address, nonce, expiry *big.Int, v uint8, r, s [32]byte) error {
	return ctx.Invoke(t.addr, sigDelegateBySig, delegatee, nonce, expiry, v, r, s)
}

// approve runs in the token frame; ctx.Caller() is the owner.
func (t *Token) approve(ctx *chain.Context, spender crypto.Address, raw *big.Int) error {
	amount, err := safe96Allowance(raw, ErrApproveOverflow)
	if err != nil {
		return err
	}
	return t.setAllowance(ctx, ctx.Caller(), spender, amount)
}

func (t *Token) setAllowance(ctx *chain.Context, owner, spender crypto.Address, amount *big.Int) error {
	if err := nativecommon.PutBig(ctx.State(), t.key("allowance", owner.Bytes(), spender.Bytes()), amount); err != nil {
		return err
	}
	ctx.Emit(events.Approval{Owner: owner, Spender: spender, Amount: amount}.Event())
	return nil
}

func (t *Token) transfer(ctx *chain.Context, to crypto.Address, raw *big.Int) error {
	amount, err := safe96(raw, ErrTransferOverflow)
	if err != nil {
		return err
	}
	return t.transferTokens(ctx, ctx.Caller(), to, amount)
}

func (t *Token) transferFrom(ctx *chain.Context, from, to crypto.Address, raw *big.Int) error {
	spender := ctx.Caller()
	amount, err := safe96(raw, ErrApproveOverflow)
	if err != nil {
		return err
	}
	allowance, err := t.Allowance(ctx, from, spender)
	if err != nil {
		return err
	}
	if spender != from && allowance.Cmp(maxUint96) != 0 {
		if allowance.Cmp(amount) < 0 {
			return ErrAllowanceExceeded
		}
		if err := t.setAllowance(ctx, from, spender, new(big.Int).Sub(allowance, amount)); err != nil {
			return err
		}
	}
	return t.transferTokens(ctx, from, to, amount)
}

func (t *Token) transferTokens(ctx *chain.Context, from, to crypto.Address, amount *big.Int) error {
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
	if err := nativecommon.PutBig(st, t.key("balance", from.Bytes()), new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	toBal, err := t.BalanceOf(ctx, to)
	if err != nil {
		return err
	}
	toBal.Add(toBal, amount)
	if toBal.Cmp(maxUint96) > 0 {
		return ErrBalanceOverflow
	}
	if err := nativecommon.PutBig(st, t.key("balance", to.Bytes()), toBal); err != nil {
		return err
	}
	ctx.Emit(events.Transfer{From: from, To: to, Amount: amount}.Event())

	fromDelegate, err := t.Delegates(ctx, from)
	if err != nil {
		return err
	}
	toDelegate, err := t.Delegates(ctx, to)
	if err != nil {
		return err
	}
	return t.moveDelegates(ctx, fromDelegate, toDelegate, amount)
}

func safe96(v *big.Int, errOverflow error) (*big.Int, error) {
	if v == nil {
		return new(big.Int), nil
	}
	if v.Sign() < 0 || v.Cmp(maxUint96) > 0 {
		return nil, errOverflow
	}
	return new(big.Int).Set(v), nil
}

// safe96Allowance maps the conventional "infinite" uint256 allowance onto the
// 96-bit maximum.
func safe96Allowance(v *big.Int, errOverflow error) (*big.Int, error) {
	if v != nil && v.Cmp(maxUint256) == 0 {
		return new(big.Int).Set(maxUint96), nil
	}
	return safe96(v, errOverflow)
}
