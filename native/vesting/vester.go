// Package vesting holds token grants that unlock over time: linear vesters
// (optionally with a cliff, vote delegation or termination), a date lock and
// a per-block drip reservoir.
package vesting

import (
	"errors"
	"fmt"
	"math/big"

	"ndxgov/core/chain"
	"ndxgov/crypto"
	nativecommon "ndxgov/native/common"
	"ndxgov/native/erc20"
	"ndxgov/native/token"
)

const (
	TreasuryVesterKind   = "vesting.treasury"
	DelegatingVesterKind = "vesting.delegating"
	CancelableVesterKind = "vesting.cancelable_delegating"
)

var contractNames = map[string]string{
	TreasuryVesterKind:   "treasury vester",
	DelegatingVesterKind: "delegating vester",
	CancelableVesterKind: "cancelable delegating vester",
}

var (
	ErrBeginTooEarly      = errors.New("vesting: begin too early")
	ErrCliffTooEarly      = errors.New("vesting: cliff is too early")
	ErrEndTooEarly        = errors.New("vesting: end is too early")
	ErrVestingEndTooEarly = errors.New("vesting: end too early")
	ErrNotTimeYet         = errors.New("vesting: not time yet")
	ErrUnauthorized       = errors.New("vesting: unauthorized")
	ErrAlreadyTerminated  = errors.New("vesting: already terminated")
)

const (
	sigClaim        = "claim()"
	sigSetRecipient = "setRecipient(address)"
	sigDelegate     = "delegate(address)"
	sigTerminate    = "terminate()"
)

// Schedule describes a linear grant of Amount tokens between Begin and End.
// Cliff only applies to treasury vesters.
type Schedule struct {
	Token     crypto.Address
	Recipient crypto.Address
	Amount    *big.Int
	Begin     uint64
	Cliff     uint64
	End       uint64
}

type storedSchedule struct {
	Token  crypto.Address
	Amount *big.Int
	Begin  uint64
	Cliff  uint64
	End    uint64
}

// Vester is a handle on any of the linear vester kinds.
type Vester struct {
	addr crypto.Address
	kind string
}

func vesterAt(kind string) chain.Loader {
	return func(addr crypto.Address) chain.Contract { return &Vester{addr: addr, kind: kind} }
}

// Register installs every vesting contract kind on c.
func Register(c *chain.Chain) {
	for kind := range contractNames {
		c.Register(kind, vesterAt(kind))
	}
	c.Register(LockKind, func(addr crypto.Address) chain.Contract { return LockAt(addr) })
	c.Register(ReservoirKind, func(addr crypto.Address) chain.Contract { return ReservoirAt(addr) })
}

func VesterAt(addr crypto.Address, kind string) *Vester {
	return &Vester{addr: addr, kind: kind}
}

func (v *Vester) fail(op string, err error) error {
	return fmt.Errorf("%s %s: %w", contractNames[v.kind], op, err)
}

// DeployTreasuryVester creates a vester that pays nothing before Cliff.
func DeployTreasuryVester(ctx *chain.Context, addr crypto.Address, s Schedule) (*Vester, error) {
	v := VesterAt(addr, TreasuryVesterKind)
	switch {
	case s.Begin < ctx.Timestamp():
		return nil, v.fail("constructor", ErrBeginTooEarly)
	case s.Cliff < s.Begin:
		return nil, v.fail("constructor", ErrCliffTooEarly)
	case s.End <= s.Cliff:
		return nil, v.fail("constructor", ErrEndTooEarly)
	}
	return v, v.deploy(ctx, s)
}

// DeployDelegatingVester creates a vester whose recipient may delegate the
// votes of the unvested balance. Token must be an Ndx token.
func DeployDelegatingVester(ctx *chain.Context, addr crypto.Address, s Schedule) (*Vester, error) {
	return deployDelegating(ctx, VesterAt(addr, DelegatingVesterKind), s)
}

// DeployCancelableVester is DeployDelegatingVester with a terminator that can
// stop the grant and reclaim what has not vested.
func DeployCancelableVester(ctx *chain.Context, addr, terminator crypto.Address, s Schedule) (*Vester, error) {
	v, err := deployDelegating(ctx, VesterAt(addr, CancelableVesterKind), s)
	if err != nil {
		return nil, err
	}
	if err := nativecommon.PutAddress(ctx.State(), v.key("terminator"), terminator); err != nil {
		return nil, err
	}
	return v, nil
}

func deployDelegating(ctx *chain.Context, v *Vester, s Schedule) (*Vester, error) {
	if s.Begin < ctx.Timestamp() {
		return nil, v.fail("constructor", ErrBeginTooEarly)
	}
	if s.End <= s.Begin {
		return nil, v.fail("constructor", ErrVestingEndTooEarly)
	}
	if err := ctx.RequireKind(s.Token, token.Kind); err != nil {
		return nil, err
	}
	s.Cliff = s.Begin
	return v, v.deploy(ctx, s)
}

func (v *Vester) deploy(ctx *chain.Context, s Schedule) error {
	if _, err := erc20.At(ctx, s.Token); err != nil {
		return err
	}
	if err := ctx.Deploy(v.addr, v.kind); err != nil {
		return err
	}
	st := ctx.State()
	amount := new(big.Int)
	if s.Amount != nil {
		amount.Set(s.Amount)
	}
	stored := &storedSchedule{Token: s.Token, Amount: amount, Begin: s.Begin, Cliff: s.Cliff, End: s.End}
	if err := st.KVPut(v.key("schedule"), stored); err != nil {
		return err
	}
	if err := nativecommon.PutAddress(st, v.key("recipient"), s.Recipient); err != nil {
		return err
	}
	return nativecommon.PutUint64(st, v.key("last_update"), s.Begin)
}

func (v *Vester) key(field string, parts ...[]byte) []byte {
	return nativecommon.Key(v.addr, field, parts...)
}

func (v *Vester) Address() crypto.Address { return v.addr }

// Schedule returns the grant with the current recipient.
func (v *Vester) Schedule(ctx *chain.Context) (Schedule, error) {
	var stored storedSchedule
	if _, err := ctx.State().KVGet(v.key("schedule"), &stored); err != nil {
		return Schedule{}, err
	}
	recipient, err := v.Recipient(ctx)
	if err != nil {
		return Schedule{}, err
	}
	amount := stored.Amount
	if amount == nil {
		amount = new(big.Int)
	}
	return Schedule{
		Token:     stored.Token,
		Recipient: recipient,
		Amount:    amount,
		Begin:     stored.Begin,
		Cliff:     stored.Cliff,
		End:       stored.End,
	}, nil
}

func (v *Vester) Recipient(ctx *chain.Context) (crypto.Address, error) {
	return nativecommon.GetAddress(ctx.State(), v.key("recipient"))
}

func (v *Vester) LastUpdate(ctx *chain.Context) (uint64, error) {
	return nativecommon.GetUint64(ctx.State(), v.key("last_update"))
}

func (v *Vester) Terminator(ctx *chain.Context) (crypto.Address, error) {
	return nativecommon.GetAddress(ctx.State(), v.key("terminator"))
}

func (v *Vester) Terminated(ctx *chain.Context) (bool, error) {
	return nativecommon.GetBool(ctx.State(), v.key("terminated"))
}

// Claimable returns what claim would pay at the current block time.
func (v *Vester) Claimable(ctx *chain.Context) (*big.Int, error) {
	amount, _, err := v.claimable(ctx)
	return amount, err
}

func (v *Vester) Claim(ctx *chain.Context) error {
	return ctx.Invoke(v.addr, sigClaim)
}

func (v *Vester) SetRecipient(ctx *chain.Context, recipient crypto.Address) error {
	return ctx.Invoke(v.addr, sigSetRecipient, recipient)
}

func (v *Vester) Delegate(ctx *chain.Context, delegatee crypto.Address) error {
	return ctx.Invoke(v.addr, sigDelegate, delegatee)
}

func (v *Vester) Terminate(ctx *chain.Context) error {
	return ctx.Invoke(v.addr, sigTerminate)
}

// claimable computes the payout and whether lastUpdate advances with it.
func (v *Vester) claimable(ctx *chain.Context) (*big.Int, bool, error) {
	terminated, err := v.Terminated(ctx)
	if err != nil {
		return nil, false, err
	}
	if terminated {
		return new(big.Int), false, nil
	}
	s, err := v.Schedule(ctx)
	if err != nil {
		return nil, false, err
	}
	now := ctx.Timestamp()
	if v.kind == TreasuryVesterKind && now < s.Cliff {
		return nil, false, v.fail("claim", ErrNotTimeYet)
	}
	if now >= s.End {
		balance, err := erc20.BalanceOf(ctx, s.Token, v.addr)
		return balance, false, err
	}
	last, err := v.LastUpdate(ctx)
	if err != nil {
		return nil, false, err
	}
	if now <= last {
		return new(big.Int), false, nil
	}
	amount := new(big.Int).Mul(s.Amount, new(big.Int).SetUint64(now-last))
	amount.Quo(amount, new(big.Int).SetUint64(s.End-s.Begin))
	return amount, true, nil
}

func (v *Vester) claim(ctx *chain.Context) error {
	amount, advance, err := v.claimable(ctx)
	if err != nil {
		return err
	}
	if advance {
		if err := nativecommon.PutUint64(ctx.State(), v.key("last_update"), ctx.Timestamp()); err != nil {
			return err
		}
	}
	if amount.Sign() == 0 {
		return nil
	}
	s, err := v.Schedule(ctx)
	if err != nil {
		return err
	}
	if err := erc20.Transfer(ctx, s.Token, s.Recipient, amount); err != nil {
		return err
	}
	ctx.Emit(claimed(s.Recipient, amount))
	return nil
}

func (v *Vester) onlyRecipient(ctx *chain.Context, op string) error {
	recipient, err := v.Recipient(ctx)
	if err != nil {
		return err
	}
	if ctx.Caller() != recipient {
		return v.fail(op, ErrUnauthorized)
	}
	return nil
}

func (v *Vester) setRecipient(ctx *chain.Context, next crypto.Address) error {
	if err := v.onlyRecipient(ctx, "setRecipient"); err != nil {
		return err
	}
	if err := nativecommon.PutAddress(ctx.State(), v.key("recipient"), next); err != nil {
		return err
	}
	ctx.Emit(recipientChanged(next))
	return nil
}

func (v *Vester) delegate(ctx *chain.Context, delegatee crypto.Address) error {
	if err := v.onlyRecipient(ctx, "delegate"); err != nil {
		return err
	}
	s, err := v.Schedule(ctx)
	if err != nil {
		return err
	}
	return token.At(s.Token).Delegate(ctx, delegatee)
}

// terminate pays out what has vested, returns the rest to the terminator
// and stops the grant.
func (v *Vester) terminate(ctx *chain.Context) error {
	terminator, err := v.Terminator(ctx)
	if err != nil {
		return err
	}
	if ctx.Caller() != terminator {
		return v.fail("terminate", ErrUnauthorized)
	}
	terminated, err := v.Terminated(ctx)
	if err != nil {
		return err
	}
	if terminated {
		return v.fail("terminate", ErrAlreadyTerminated)
	}
	if err := v.claim(ctx); err != nil {
		return err
	}
	if err := nativecommon.PutBool(ctx.State(), v.key("terminated"), true); err != nil {
		return err
	}
	s, err := v.Schedule(ctx)
	if err != nil {
		return err
	}
	remainder, err := erc20.BalanceOf(ctx, s.Token, v.addr)
	if err != nil {
		return err
	}
	if remainder.Sign() > 0 {
		if err := erc20.Transfer(ctx, s.Token, terminator, remainder); err != nil {
			return err
		}
	}
	ctx.Emit(vesterTerminated(terminator, remainder))
	return nil
}

// Invoke implements chain.Contract.
func (v *Vester) Invoke(ctx *chain.Context, method string, args chain.Args) error {
	switch {
	case method == sigClaim:
		return v.claim(ctx)
	case method == sigSetRecipient:
		next, err := args.Address(0)
		if err != nil {
			return err
		}
		return v.setRecipient(ctx, next)
	case method == sigDelegate && v.kind != TreasuryVesterKind:
		delegatee, err := args.Address(0)
		if err != nil {
			return err
		}
		return v.delegate(ctx, delegatee)
	case method == sigTerminate && v.kind == CancelableVesterKind:
		return v.terminate(ctx)
	}
	return chain.Dispatcher(nil).Invoke(ctx, method, args)
}
