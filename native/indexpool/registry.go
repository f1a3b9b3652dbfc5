// Package indexpool tracks which assets are recognised index pools. Staking
// pools for index tokens and their AMM pairs can only be deployed for assets
// on this list.
package indexpool

import (
	"errors"

	"ndxgov/core/chain"
	"ndxgov/core/events"
	"ndxgov/core/types"
	"ndxgov/crypto"
	nativecommon "ndxgov/native/common"
)

const Kind = "indexpool.registry"

const (
	SigAddPool           = "addPool(address)"
	SigRemovePool        = "removePool(address)"
	SigTransferOwnership = "transferOwnership(address)"
)

var (
	ErrNotOwner       = errors.New("indexpool: caller is not the owner")
	ErrZeroPool       = errors.New("indexpool: zero address")
	ErrAlreadyTracked = errors.New("indexpool: pool already recognised")
	ErrNotTracked     = errors.New("indexpool: pool not recognised")
)

type Registry struct {
	addr crypto.Address
}

func At(addr crypto.Address) *Registry { return &Registry{addr: addr} }

func Register(c *chain.Chain) {
	c.Register(Kind, func(addr crypto.Address) chain.Contract { return At(addr) })
}

// Deploy creates a registry owned by owner.
func Deploy(ctx *chain.Context, addr, owner crypto.Address) (*Registry, error) {
	if err := ctx.Deploy(addr, Kind); err != nil {
		return nil, err
	}
	r := At(addr)
	if err := nativecommon.PutAddress(ctx.State(), r.key("owner"), owner); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) key(field string, parts ...[]byte) []byte {
	return nativecommon.Key(r.addr, field, parts...)
}

func (r *Registry) Address() crypto.Address { return r.addr }

func (r *Registry) Owner(ctx *chain.Context) (crypto.Address, error) {
	return nativecommon.GetAddress(ctx.State(), r.key("owner"))
}

// IsRecognizedPool reports whether asset is a registered index pool.
func (r *Registry) IsRecognizedPool(ctx *chain.Context, asset crypto.Address) (bool, error) {
	return nativecommon.GetBool(ctx.State(), r.key("pool", asset.Bytes()))
}

func (r *Registry) AddPool(ctx *chain.Context, asset crypto.Address) error {
	return ctx.Invoke(r.addr, SigAddPool, asset)
}

func (r *Registry) RemovePool(ctx *chain.Context, asset crypto.Address) error {
	return ctx.Invoke(r.addr, SigRemovePool, asset)
}

func (r *Registry) TransferOwnership(ctx *chain.Context, owner crypto.Address) error {
	return ctx.Invoke(r.addr, SigTransferOwnership, owner)
}

func (r *Registry) onlyOwner(ctx *chain.Context) error {
	owner, err := r.Owner(ctx)
	if err != nil {
		return err
	}
	if ctx.Caller() != owner {
		return ErrNotOwner
	}
	return nil
}

func (r *Registry) setPool(ctx *chain.Context, asset crypto.Address, recognised bool) error {
	if err := r.onlyOwner(ctx); err != nil {
		return err
	}
	if asset.IsZero() {
		return ErrZeroPool
	}
	current, err := r.IsRecognizedPool(ctx, asset)
	if err != nil {
		return err
	}
	switch {
	case recognised && current:
		return ErrAlreadyTracked
	case !recognised && !current:
		return ErrNotTracked
	}
	if err := nativecommon.PutBool(ctx.State(), r.key("pool", asset.Bytes()), recognised); err != nil {
		return err
	}
	evtType := "indexpool.pool_added"
	if !recognised {
		evtType = "indexpool.pool_removed"
	}
	ctx.Emit(&types.Event{Type: evtType, Attributes: map[string]string{
		"pool": events.FormatAddress(asset),
	}})
	return nil
}

// Invoke implements chain.Contract.
func (r *Registry) Invoke(ctx *chain.Context, method string, args chain.Args) error {
	switch method {
	case SigAddPool, SigRemovePool:
		asset, err := args.Address(0)
		if err != nil {
			return err
		}
		return r.setPool(ctx, asset, method == SigAddPool)
	case SigTransferOwnership:
		next, err := args.Address(0)
		if err != nil {
			return err
		}
		if err := r.onlyOwner(ctx); err != nil {
			return err
		}
		return nativecommon.PutAddress(ctx.State(), r.key("owner"), next)
	}
	return chain.Dispatcher(nil).Invoke(ctx, method, args)
}
