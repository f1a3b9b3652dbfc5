package governance

import (
	"ndxgov/core/chain"
)

const (
	sigPropose                  = "propose(address[],uint256[],string[],bytes[],string)"
	sigCastVote                 = "castVote(uint256,bool)"
	sigCastVoteBySig            = "castVoteBySig(uint256,bool,uint8,bytes32,bytes32)"
	sigQueue                    = "queue(uint256)"
	sigExecute                  = "execute(uint256)"
	sigCancel                   = "cancel(uint256)"
	sigSetPermanentVotingPeriod = "setPermanentVotingPeriod()"
)

func proposalID(args chain.Args) (uint64, error) {
	return args.Uint64(0)
}

// Invoke implements chain.Contract.
func (g *Governor) Invoke(ctx *chain.Context, method string, args chain.Args) error {
	return chain.Dispatcher{
		sigPropose: func(ctx *chain.Context, args chain.Args) error {
			var p Proposal
			var err error
			if p.Targets, err = args.Addresses(0); err != nil {
				return err
			}
			if p.Values, err = args.Bigs(1); err != nil {
				return err
			}
			if p.Signatures, err = args.Strings(2); err != nil {
				return err
			}
			if p.Calldatas, err = args.BytesList(3); err != nil {
				return err
			}
			description, err := args.String(4)
			if err != nil {
				return err
			}
			return g.propose(ctx, &p, description)
		},
		sigCastVote: func(ctx *chain.Context, args chain.Args) error {
			id, err := proposalID(args)
			if err != nil {
				return err
			}
			support, err := args.Bool(1)
			if err != nil {
				return err
			}
			return g.castVote(ctx, ctx.Caller(), id, support)
		},
		sigCastVoteBySig: func(ctx *chain.Context, args chain.Args) error {
			id, err := proposalID(args)
			if err != nil {
				return err
			}
			support, err := args.Bool(1)
			if err != nil {
				return err
			}
			v, err := args.Uint8(2)
			if err != nil {
				return err
			}
			r, err := args.Bytes32(3)
			if err != nil {
				return err
			}
			s, err := args.Bytes32(4)
			if err != nil {
				return err
			}
			return g.castVoteBySig(ctx, id, support, v, r, s)
		},
		sigQueue: func(ctx *chain.Context, args chain.Args) error {
			id, err := proposalID(args)
			if err != nil {
				return err
			}
			return g.queue(ctx, id)
		},
		sigExecute: func(ctx *chain.Context, args chain.Args) error {
			id, err := proposalID(args)
			if err != nil {
				return err
			}
			return g.execute(ctx, id)
		},
		sigCancel: func(ctx *chain.Context, args chain.Args) error {
			id, err := proposalID(args)
			if err != nil {
				return err
			}
			return g.cancel(ctx, id)
		},
		sigSetPermanentVotingPeriod: func(ctx *chain.Context, args chain.Args) error {
			return g.setPermanentVotingPeriod(ctx)
		},
	}.Invoke(ctx, method, args)
}
