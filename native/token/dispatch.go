package token

import (
	"ndxgov/core/chain"
	"ndxgov/native/erc20"
)

const (
	sigTransfer      = erc20.SigTransfer
	sigTransferFrom  = erc20.SigTransferFrom
	sigApprove       = erc20.SigApprove
	sigDelegate      = "delegate(address)"
	sigDelegateBySig = "delegateBySig(address,uint256,uint256,uint8,bytes32,bytes32)"
	sigPermit        = "permit(address,address,uint256,uint256,uint8,bytes32,bytes32)"
	sigMint          = "mint(address,uint256)"
	sigSetMinter     = "setMinter(address)"
)

// Invoke implements chain.Contract.
func (t *Token) Invoke(ctx *chain.Context, method string, args chain.Args) error {
	return chain.Dispatcher{
		sigTransfer: func(ctx *chain.Context, args chain.Args) error {
			to, err := args.Address(0)
			if err != nil {
				return err
			}
			amount, err := args.Big(1)
			if err != nil {
				return err
			}
			return t.transfer(ctx, to, amount)
		},
		sigTransferFrom: func(ctx *chain.Context, args chain.Args) error {
			from, err := args.Address(0)
			if err != nil {
				return err
			}
			to, err := args.Address(1)
			if err != nil {
				return err
			}
			amount, err := args.Big(2)
			if err != nil {
				return err
			}
			return t.transferFrom(ctx, from, to, amount)
		},
		sigApprove: func(ctx *chain.Context, args chain.Args) error {
			spender, err := args.Address(0)
			if err != nil {
				return err
			}
			amount, err := args.Big(1)
			if err != nil {
				return err
			}
			return t.approve(ctx, spender, amount)
		},
		sigDelegate: func(ctx *chain.Context, args chain.Args) error {
			delegatee, err := args.Address(0)
			if err != nil {
				return err
			}
			return t.delegate(ctx, ctx.Caller(), delegatee)
		},
		sigDelegateBySig: func(ctx *chain.Context, args chain.Args) error {
			delegatee, err := args.Address(0)
			if err != nil {
				return err
			}
			nonce, err := args.Big(1)
			if err != nil {
				return err
			}
			expiry, err := args.Big(2)
			if err != nil {
				return err
			}
			v, err := args.Uint8(3)
			if err != nil {
				return err
			}
			r, err := args.Bytes32(4)
			if err != nil {
				return err
			}
			s, err := args.Bytes32(5)
			if err != nil {
				return err
			}
			return t.delegateBySig(ctx, delegatee, nonce, expiry, v, r, s)
		},
		sigPermit: func(ctx *chain.Context, args chain.Args) error {
			owner, err := args.Address(0)
			if err != nil {
				return err
			}
			spender, err := args.Address(1)
			if err != nil {
				return err
			}
			value, err := args.Big(2)
			if err != nil {
				return err
			}
			deadline, err := args.Big(3)
			if err != nil {
				return err
			}
			v, err := args.Uint8(4)
			if err != nil {
				return err
			}
			r, err := args.Bytes32(5)
			if err != nil {
				return err
			}
			s, err := args.Bytes32(6)
			if err != nil {
				return err
			}
			return t.permit(ctx, owner, spender, value, deadline, v, r, s)
		},
		sigMint: func(ctx *chain.Context, args chain.Args) error {
			dst, err := args.Address(0)
			if err != nil {
				return err
			}
			amount, err := args.Big(1)
			if err != nil {
				return err
			}
			return t.mint(ctx, dst, amount)
		},
		sigSetMinter: func(ctx *chain.Context, args chain.Args) error {
			minter, err := args.Address(0)
			if err != nil {
				return err
			}
			return t.setMinter(ctx, minter)
		},
	}.Invoke(ctx, method, args)
}
