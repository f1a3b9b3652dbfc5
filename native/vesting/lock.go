package vesting

import (
	"errors"
	"fmt"

	"ndxgov/core/chain"
	"ndxgov/crypto"
	nativecommon "ndxgov/native/common"
	"ndxgov/native/erc20"
)

const LockKind = "vesting.treasury_lock"

var (
	ErrNullRecipient = errors.New("vesting: can not set null recipient")
	ErrNullToken     = errors.New("vesting: can not set null token")
	ErrUnlockTooSoon = errors.New("vesting: unlock date too soon")
	ErrLockNotReady  = errors.New("vesting: lock not ready")
)

func lockErr(op string, err error) error {
	return fmt.Errorf("treasury lock %s: %w", op, err)
}

type lockConfig struct {
	Recipient  crypto.Address
	Token      crypto.Address
	UnlockDate uint64
}

// Lock holds its whole token balance for a recipient until UnlockDate.
type Lock struct {
	addr crypto.Address
}

func LockAt(addr crypto.Address) *Lock { return &Lock{addr: addr} }

func DeployLock(ctx *chain.Context, addr, recipient, tokenAddr crypto.Address, unlockDate uint64) (*Lock, error) {
	switch {
	case recipient.IsZero():
		return nil, lockErr("constructor", ErrNullRecipient)
	case tokenAddr.IsZero():
		return nil, lockErr("constructor", ErrNullToken)
	case unlockDate <= ctx.Timestamp():
		return nil, lockErr("constructor", ErrUnlockTooSoon)
	}
	if err := ctx.Deploy(addr, LockKind); err != nil {
		return nil, err
	}
	l := LockAt(addr)
	cfg := &lockConfig{Recipient: recipient, Token: tokenAddr, UnlockDate: unlockDate}
	if err := ctx.State().KVPut(nativecommon.Key(addr, "config"), cfg); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Lock) Address() crypto.Address { return l.addr }

func (l *Lock) config(ctx *chain.Context) (*lockConfig, error) {
	var cfg lockConfig
	if _, err := ctx.State().KVGet(nativecommon.Key(l.addr, "config"), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *Lock) Recipient(ctx *chain.Context) (crypto.Address, error) {
	cfg, err := l.config(ctx)
	if err != nil {
		return crypto.Address{}, err
	}
	return cfg.Recipient, nil
}

func (l *Lock) Token(ctx *chain.Context) (crypto.Address, error) {
	cfg, err := l.config(ctx)
	if err != nil {
		return crypto.Address{}, err
	}
	return cfg.Token, nil
}

func (l *Lock) UnlockDate(ctx *chain.Context) (uint64, error) {
	cfg, err := l.config(ctx)
	if err != nil {
		return 0, err
	}
	return cfg.UnlockDate, nil
}

func (l *Lock) Claim(ctx *chain.Context) error {
	return ctx.Invoke(l.addr, sigClaim)
}

func (l *Lock) claim(ctx *chain.Context) error {
	cfg, err := l.config(ctx)
	if err != nil {
		return err
	}
	if ctx.Timestamp() < cfg.UnlockDate {
		return lockErr("claim", ErrLockNotReady)
	}
	balance, err := erc20.BalanceOf(ctx, cfg.Token, l.addr)
	if err != nil {
		return err
	}
	if err := erc20.Transfer(ctx, cfg.Token, cfg.Recipient, balance); err != nil {
		return err
	}
	ctx.Emit(claimed(cfg.Recipient, balance))
	return nil
}

// Invoke implements chain.Contract.
func (l *Lock) Invoke(ctx *chain.Context, method string, args chain.Args) error {
	return chain.Dispatcher{
		sigClaim: func(ctx *chain.Context, _ chain.Args) error { return l.claim(ctx) },
	}.Invoke(ctx, method, args)
}
