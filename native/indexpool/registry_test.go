package indexpool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ndxgov/core/chain"
	"ndxgov/crypto"
	"ndxgov/storage"
)

func TestRegistryOwnerManagesPools(t *testing.T) {
	c, err := chain.New(storage.NewMemDB(), chain.NewManualClock(1, 0))
	require.NoError(t, err)
	Register(c)
	owner := crypto.ContractAddress("account/owner")
	stranger := crypto.ContractAddress("account/stranger")
	pool := crypto.ContractAddress("pool/defi5")

	var reg *Registry
	require.NoError(t, c.Execute(owner, func(ctx *chain.Context) error {
		var err error
		reg, err = Deploy(ctx, crypto.ContractAddress("registry"), owner)
		return err
	}))

	err = c.Execute(stranger, func(ctx *chain.Context) error { return reg.AddPool(ctx, pool) })
	require.ErrorIs(t, err, ErrNotOwner)

	require.NoError(t, c.Execute(owner, func(ctx *chain.Context) error { return reg.AddPool(ctx, pool) }))
	err = c.Execute(owner, func(ctx *chain.Context) error { return reg.AddPool(ctx, pool) })
	require.ErrorIs(t, err, ErrAlreadyTracked)
	err = c.Execute(owner, func(ctx *chain.Context) error { return reg.AddPool(ctx, crypto.Address{}) })
	require.ErrorIs(t, err, ErrZeroPool)

	recognised := func() bool {
		var ok bool
		require.NoError(t, c.View(func(ctx *chain.Context) error {
			var err error
			ok, err = reg.IsRecognizedPool(ctx, pool)
			return err
		}))
		return ok
	}
	require.True(t, recognised())

	require.NoError(t, c.Execute(owner, func(ctx *chain.Context) error { return reg.RemovePool(ctx, pool) }))
	require.False(t, recognised())
	err = c.Execute(owner, func(ctx *chain.Context) error { return reg.RemovePool(ctx, pool) })
	require.ErrorIs(t, err, ErrNotTracked)
}
