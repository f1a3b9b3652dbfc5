package vesting

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"

	"ndxgov/core/chain"
	"ndxgov/crypto"
	nativecommon "ndxgov/native/common"
	"ndxgov/native/erc20"
)

const ReservoirKind = "vesting.reservoir"

var (
	ErrDripTotalOverflow  = errors.New("vesting: drip total overflow")
	ErrDeltaDripUnderflow = errors.New("vesting: delta drip underflow")
	ErrAdditionOverflow   = errors.New("vesting: addition overflow")
)

const sigDrip = "drip()"

type reservoirConfig struct {
	DripStart uint64
	DripRate  *big.Int
	Token     crypto.Address
	Target    crypto.Address
}

// Reservoir releases DripRate tokens per block to a fixed target, bounded
// by the balance it holds.
type Reservoir struct {
	addr crypto.Address
}

func ReservoirAt(addr crypto.Address) *Reservoir { return &Reservoir{addr: addr} }

// DeployReservoir starts dripping from the current block.
func DeployReservoir(ctx *chain.Context, addr crypto.Address, dripRate *big.Int, tokenAddr, target crypto.Address) (*Reservoir, error) {
	if _, overflow := uint256.FromBig(dripRate); overflow || dripRate.Sign() < 0 {
		return nil, ErrDripTotalOverflow
	}
	if err := ctx.Deploy(addr, ReservoirKind); err != nil {
		return nil, err
	}
	cfg := &reservoirConfig{
		DripStart: ctx.BlockNumber(),
		DripRate:  new(big.Int).Set(dripRate),
		Token:     tokenAddr,
		Target:    target,
	}
	if err := ctx.State().KVPut(nativecommon.Key(addr, "config"), cfg); err != nil {
		return nil, err
	}
	return ReservoirAt(addr), nil
}

func (r *Reservoir) Address() crypto.Address { return r.addr }

func (r *Reservoir) config(ctx *chain.Context) (*reservoirConfig, error) {
	var cfg reservoirConfig
	if _, err := ctx.State().KVGet(nativecommon.Key(r.addr, "config"), &cfg); err != nil {
		return nil, err
	}
	if cfg.DripRate == nil {
		cfg.DripRate = new(big.Int)
	}
	return &cfg, nil
}

// Dripped is the running total paid to the target.
func (r *Reservoir) Dripped(ctx *chain.Context) (*big.Int, error) {
	return nativecommon.GetBig(ctx.State(), nativecommon.Key(r.addr, "dripped"))
}

// Pending returns what drip would pay at the current block.
func (r *Reservoir) Pending(ctx *chain.Context) (*big.Int, error) {
	amount, _, err := r.pending(ctx)
	if err != nil {
		return nil, err
	}
	return amount.ToBig(), nil
}

func (r *Reservoir) Drip(ctx *chain.Context) error {
	return ctx.Invoke(r.addr, sigDrip)
}

func (r *Reservoir) pending(ctx *chain.Context) (*uint256.Int, *reservoirConfig, error) {
	cfg, err := r.config(ctx)
	if err != nil {
		return nil, nil, err
	}
	rate, _ := uint256.FromBig(cfg.DripRate)
	blocks := uint256.NewInt(ctx.BlockNumber() - cfg.DripStart)
	total, overflow := new(uint256.Int).MulOverflow(rate, blocks)
	if overflow {
		return nil, nil, ErrDripTotalOverflow
	}
	paidSoFar, err := r.Dripped(ctx)
	if err != nil {
		return nil, nil, err
	}
	paid, _ := uint256.FromBig(paidSoFar)
	delta, underflow := new(uint256.Int).SubOverflow(total, paid)
	if underflow {
		return nil, nil, ErrDeltaDripUnderflow
	}
	held, err := erc20.BalanceOf(ctx, cfg.Token, r.addr)
	if err != nil {
		return nil, nil, err
	}
	balance, _ := uint256.FromBig(held)
	if balance.Lt(delta) {
		delta = balance
	}
	return delta, cfg, nil
}

func (r *Reservoir) drip(ctx *chain.Context) error {
	amount, cfg, err := r.pending(ctx)
	if err != nil {
		return err
	}
	soFar, err := r.Dripped(ctx)
	if err != nil {
		return err
	}
	paid, _ := uint256.FromBig(soFar)
	next, overflow := new(uint256.Int).AddOverflow(paid, amount)
	if overflow {
		return ErrAdditionOverflow
	}
	if err := nativecommon.PutBig(ctx.State(), nativecommon.Key(r.addr, "dripped"), next.ToBig()); err != nil {
		return err
	}
	if amount.IsZero() {
		return nil
	}
	if err := erc20.Transfer(ctx, cfg.Token, cfg.Target, amount.ToBig()); err != nil {
		return err
	}
	ctx.Emit(dripped(cfg.Target, amount.ToBig()))
	return nil
}

// Invoke implements chain.Contract.
func (r *Reservoir) Invoke(ctx *chain.Context, method string, args chain.Args) error {
	return chain.Dispatcher{
		sigDrip: func(ctx *chain.Context, _ chain.Args) error { return r.drip(ctx) },
	}.Invoke(ctx, method, args)
}
