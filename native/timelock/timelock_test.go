package timelock

import (
	"errors"
	"math/big"
	"testing"

	"ndxgov/core/chain"
	"ndxgov/crypto"
	"ndxgov/native/bank"
	"ndxgov/storage"
)

const day = 24 * 60 * 60

type fixture struct {
	chain *chain.Chain
	clock *chain.ManualClock
	tl    *Timelock
	usd   *bank.Token
	admin crypto.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := chain.NewManualClock(1, 1_600_000_000)
	c, err := chain.New(storage.NewMemDB(), clock)
	if err != nil {
		t.Fatalf("new chain: %v", err)
	}
	Register(c)
	bank.Register(c)
	f := &fixture{chain: c, clock: clock, admin: crypto.ContractAddress("account/admin")}
	err = c.Execute(f.admin, func(ctx *chain.Context) error {
		tl, err := Deploy(ctx, crypto.ContractAddress("timelock"), f.admin, 2*day)
		if err != nil {
			return err
		}
		f.tl = tl
		usd, err := bank.Deploy(ctx, crypto.ContractAddress("usd"), bank.Metadata{Name: "USD", Symbol: "USD", Decimals: 18})
		if err != nil {
			return err
		}
		f.usd = usd
		return usd.TransferOwnership(ctx, tl.Address())
	})
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	return f
}

func (f *fixture) now() uint64 {
	_, ts := f.clock.Now()
	return ts
}

func (f *fixture) usdBalance(t *testing.T, owner crypto.Address) int64 {
	t.Helper()
	var out *big.Int
	if err := f.chain.View(func(ctx *chain.Context) error {
		var err error
		out, err = f.usd.BalanceOf(ctx, owner)
		return err
	}); err != nil {
		t.Fatalf("balance: %v", err)
	}
	return out.Int64()
}

func TestDeployBoundsDelay(t *testing.T) {
	c, err := chain.New(storage.NewMemDB(), chain.NewManualClock(1, 0))
	if err != nil {
		t.Fatalf("new chain: %v", err)
	}
	Register(c)
	admin := crypto.ContractAddress("account/admin")
	err = c.Execute(admin, func(ctx *chain.Context) error {
		_, err := Deploy(ctx, crypto.ContractAddress("a"), admin, day)
		return err
	})
	if !errors.Is(err, ErrDelayTooShort) {
		t.Fatalf("expected ErrDelayTooShort, got %v", err)
	}
	err = c.Execute(admin, func(ctx *chain.Context) error {
		_, err := Deploy(ctx, crypto.ContractAddress("b"), admin, 31*day)
		return err
	})
	if !errors.Is(err, ErrDelayTooLong) {
		t.Fatalf("expected ErrDelayTooLong, got %v", err)
	}
}

func TestQueueExecuteWindow(t *testing.T) {
	f := newFixture(t)
	recipient := crypto.ContractAddress("account/recipient")
	data := chain.MustPack(bank.SigMint, recipient, 500)
	eta := f.now() + 2*day

	err := f.chain.Execute(recipient, func(ctx *chain.Context) error {
		return f.tl.QueueTransaction(ctx, f.usd.Address(), nil, bank.SigMint, data, eta)
	})
	if !errors.Is(err, ErrQueueNotAdmin) {
		t.Fatalf("expected ErrQueueNotAdmin, got %v", err)
	}
	err = f.chain.Execute(f.admin, func(ctx *chain.Context) error {
		return f.tl.QueueTransaction(ctx, f.usd.Address(), nil, bank.SigMint, data, f.now()+day)
	})
	if !errors.Is(err, ErrEtaTooSoon) {
		t.Fatalf("expected ErrEtaTooSoon, got %v", err)
	}
	if err := f.chain.Execute(f.admin, func(ctx *chain.Context) error {
		return f.tl.QueueTransaction(ctx, f.usd.Address(), nil, bank.SigMint, data, eta)
	}); err != nil {
		t.Fatalf("queue: %v", err)
	}

	hash, err := TxHash(f.usd.Address(), nil, bank.SigMint, data, eta)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := f.chain.View(func(ctx *chain.Context) error {
		queued, err := f.tl.QueuedTransactions(ctx, hash)
		if err != nil {
			return err
		}
		if !queued {
			t.Fatalf("transaction not queued")
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}

	execute := func() error {
		return f.chain.Execute(f.admin, func(ctx *chain.Context) error {
			return f.tl.ExecuteTransaction(ctx, f.usd.Address(), nil, bank.SigMint, data, eta)
		})
	}
	if err := execute(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	f.clock.SetTime(eta)
	if err := execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := f.usdBalance(t, recipient); got != 500 {
		t.Fatalf("recipient balance %d, want 500", got)
	}
	if err := execute(); !errors.Is(err, ErrNotQueued) {
		t.Fatalf("expected ErrNotQueued on replay, got %v", err)
	}
}

func TestExecuteStaleAfterGrace(t *testing.T) {
	f := newFixture(t)
	recipient := crypto.ContractAddress("account/recipient")
	data := chain.MustPack(bank.SigMint, recipient, 1)
	eta := f.now() + 3*day
	if err := f.chain.Execute(f.admin, func(ctx *chain.Context) error {
		return f.tl.QueueTransaction(ctx, f.usd.Address(), nil, bank.SigMint, data, eta)
	}); err != nil {
		t.Fatalf("queue: %v", err)
	}
	f.clock.SetTime(eta + GracePeriod + 1)
	err := f.chain.Execute(f.admin, func(ctx *chain.Context) error {
		return f.tl.ExecuteTransaction(ctx, f.usd.Address(), nil, bank.SigMint, data, eta)
	})
	if !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
}

func TestRevertedActionRollsBack(t *testing.T) {
	f := newFixture(t)
	// The zero address makes the mint fail inside the timelock call.
	data := chain.MustPack(bank.SigMint, crypto.Address{}, 1)
	eta := f.now() + 2*day
	if err := f.chain.Execute(f.admin, func(ctx *chain.Context) error {
		return f.tl.QueueTransaction(ctx, f.usd.Address(), nil, bank.SigMint, data, eta)
	}); err != nil {
		t.Fatalf("queue: %v", err)
	}
	f.clock.SetTime(eta)
	err := f.chain.Execute(f.admin, func(ctx *chain.Context) error {
		return f.tl.ExecuteTransaction(ctx, f.usd.Address(), nil, bank.SigMint, data, eta)
	})
	if !errors.Is(err, ErrExecutionReverted) {
		t.Fatalf("expected ErrExecutionReverted, got %v", err)
	}
	hash, _ := TxHash(f.usd.Address(), nil, bank.SigMint, data, eta)
	_ = f.chain.View(func(ctx *chain.Context) error {
		queued, _ := f.tl.QueuedTransactions(ctx, hash)
		if !queued {
			t.Fatalf("failed execution must leave the transaction queued")
		}
		return nil
	})
}

func TestCancelTransaction(t *testing.T) {
	f := newFixture(t)
	data := chain.MustPack(bank.SigMint, f.admin, 1)
	eta := f.now() + 2*day
	if err := f.chain.Execute(f.admin, func(ctx *chain.Context) error {
		if err := f.tl.QueueTransaction(ctx, f.usd.Address(), nil, bank.SigMint, data, eta); err != nil {
			return err
		}
		return f.tl.CancelTransaction(ctx, f.usd.Address(), nil, bank.SigMint, data, eta)
	}); err != nil {
		t.Fatalf("queue and cancel: %v", err)
	}
	f.clock.SetTime(eta)
	err := f.chain.Execute(f.admin, func(ctx *chain.Context) error {
		return f.tl.ExecuteTransaction(ctx, f.usd.Address(), nil, bank.SigMint, data, eta)
	})
	if !errors.Is(err, ErrNotQueued) {
		t.Fatalf("expected ErrNotQueued, got %v", err)
	}
}

func TestAdminHandover(t *testing.T) {
	f := newFixture(t)
	next := crypto.ContractAddress("account/next")

	if err := f.chain.Execute(f.admin, func(ctx *chain.Context) error {
		return f.tl.SetPendingAdmin(ctx, next)
	}); err != nil {
		t.Fatalf("initial setPendingAdmin: %v", err)
	}
	// Once initialised only the timelock itself may nominate.
	err := f.chain.Execute(f.admin, func(ctx *chain.Context) error {
		return f.tl.SetPendingAdmin(ctx, f.admin)
	})
	if !errors.Is(err, ErrPendingAdminNotSelf) {
		t.Fatalf("expected ErrPendingAdminNotSelf, got %v", err)
	}
	err = f.chain.Execute(f.admin, func(ctx *chain.Context) error {
		return f.tl.AcceptAdmin(ctx)
	})
	if !errors.Is(err, ErrNotPendingAdmin) {
		t.Fatalf("expected ErrNotPendingAdmin, got %v", err)
	}
	if err := f.chain.Execute(next, func(ctx *chain.Context) error {
		return f.tl.AcceptAdmin(ctx)
	}); err != nil {
		t.Fatalf("acceptAdmin: %v", err)
	}
	_ = f.chain.View(func(ctx *chain.Context) error {
		admin, _ := f.tl.Admin(ctx)
		pending, _ := f.tl.PendingAdmin(ctx)
		if admin != next || !pending.IsZero() {
			t.Fatalf("admin %s pending %s", admin, pending)
		}
		return nil
	})
}

func TestSetDelayOnlyThroughQueue(t *testing.T) {
	f := newFixture(t)
	err := f.chain.Execute(f.admin, func(ctx *chain.Context) error {
		return ctx.Invoke(f.tl.Address(), SigSetDelay, 3*day)
	})
	if !errors.Is(err, ErrSetDelayNotSelf) {
		t.Fatalf("expected ErrSetDelayNotSelf, got %v", err)
	}

	data := chain.MustPack(SigSetDelay, 5*day)
	eta := f.now() + 2*day
	if err := f.chain.Execute(f.admin, func(ctx *chain.Context) error {
		return f.tl.QueueTransaction(ctx, f.tl.Address(), nil, SigSetDelay, data, eta)
	}); err != nil {
		t.Fatalf("queue: %v", err)
	}
	f.clock.SetTime(eta)
	if err := f.chain.Execute(f.admin, func(ctx *chain.Context) error {
		return f.tl.ExecuteTransaction(ctx, f.tl.Address(), nil, SigSetDelay, data, eta)
	}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	_ = f.chain.View(func(ctx *chain.Context) error {
		delay, _ := f.tl.Delay(ctx)
		if delay != 5*day {
			t.Fatalf("delay %d, want %d", delay, 5*day)
		}
		return nil
	})
}

func TestExecuteForwardsValue(t *testing.T) {
	f := newFixture(t)
	payee := crypto.ContractAddress("account/payee")
	if err := f.chain.Credit(f.admin, big.NewInt(10)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	eta := f.now() + 2*day
	if err := f.chain.Execute(f.admin, func(ctx *chain.Context) error {
		return f.tl.QueueTransaction(ctx, payee, big.NewInt(4), "", nil, eta)
	}); err != nil {
		t.Fatalf("queue: %v", err)
	}
	f.clock.SetTime(eta)
	if err := f.chain.Execute(f.admin, func(ctx *chain.Context) error {
		return f.tl.ExecuteTransaction(ctx, payee, big.NewInt(4), "", nil, eta)
	}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	got, err := f.chain.NativeBalance(payee)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if got.Int64() != 4 {
		t.Fatalf("payee balance %s, want 4", got)
	}
}
