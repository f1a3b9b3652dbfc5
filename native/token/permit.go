package token

import (
	"errors"
	"math/big"

	"ndxgov/core/chain"
	"ndxgov/crypto"
	nativecommon "ndxgov/native/common"
)

var (
	PermitTypeHash     = crypto.TypeHash("Permit(address owner,address spender,uint256 value,uint256 nonce,uint256 deadline)")
	DelegationTypeHash = crypto.TypeHash("Delegation(address delegatee,uint256 nonce,uint256 expiry)")
)

var (
	ErrPermitOverflow         = errors.New("token: permit amount exceeds 96 bits")
	ErrPermitInvalidSignature = errors.New("token: invalid permit signature")
	ErrPermitUnauthorized     = errors.New("token: permit signer is not the owner")
	ErrPermitExpired          = errors.New("token: permit signature expired")

	ErrDelegateInvalidSignature = errors.New("token: invalid delegation signature")
	ErrDelegateInvalidNonce     = errors.New("token: invalid delegation nonce")
	ErrDelegateExpired          = errors.New("token: delegation signature expired")
)

// PermitDigest is the typed-data digest an owner signs to approve spender.
func (t *Token) PermitDigest(ctx *chain.Context, owner, spender crypto.Address, value *big.Int, nonce uint64, deadline *big.Int) [32]byte {
	structHash := crypto.HashStruct(PermitTypeHash,
		crypto.AddressWord(owner),
		crypto.AddressWord(spender),
		crypto.Uint256Word(value),
		crypto.Uint256Word(new(big.Int).SetUint64(nonce)),
		crypto.Uint256Word(deadline),
	)
	return crypto.TypedDataDigest(t.DomainSeparator(ctx), structHash)
}

// DelegationDigest is the typed-data digest a holder signs to delegate.
func (t *Token) DelegationDigest(ctx *chain.Context, delegatee crypto.Address, nonce, expiry *big.Int) [32]byte {
	structHash := crypto.HashStruct(DelegationTypeHash,
		crypto.AddressWord(delegatee),
		crypto.Uint256Word(nonce),
		crypto.Uint256Word(expiry),
	)
	return crypto.TypedDataDigest(t.DomainSeparator(ctx), structHash)
}

func (t *Token) useNonce(ctx *chain.Context, owner crypto.Address) (uint64, error) {
	nonce, err := t.Nonces(ctx, owner)
	if err != nil {
		return 0, err
	}
	if err := nativecommon.PutUint64(ctx.State(), t.key("nonce", owner.Bytes()), nonce+1); err != nil {
		return 0, err
	}
	return nonce, nil
}

func (t *Token) permit(ctx *chain.Context, owner, spender crypto.Address, rawValue, deadline *big.Int, v uint8, r, s [32]byte) error {
	amount, err := safe96Allowance(rawValue, ErrPermitOverflow)
	if err != nil {
		return err
	}
	nonce, err := t.useNonce(ctx, owner)
	if err != nil {
		return err
	}
	digest := t.PermitDigest(ctx, owner, spender, rawValue, nonce, deadline)
	signer, err := crypto.RecoverSigner(digest, v, r, s)
	if err != nil {
		return ErrPermitInvalidSignature
	}
	if signer != owner {
		return ErrPermitUnauthorized
	}
	if new(big.Int).SetUint64(ctx.Timestamp()).Cmp(deadline) > 0 {
		return ErrPermitExpired
	}
	return t.setAllowance(ctx, owner, spender, amount)
}

func (t *Token) delegateBySig(ctx *chain.Context, delegatee crypto.Address, nonce, expiry *big.Int, v uint8, r, s [32]byte) error {
	digest := t.DelegationDigest(ctx, delegatee, nonce, expiry)
	signer, err := crypto.RecoverSigner(digest, v, r, s)
	if err != nil {
		return ErrDelegateInvalidSignature
	}
	expected, err := t.useNonce(ctx, signer)
	if err != nil {
		return err
	}
	if !nonce.IsUint64() || nonce.Uint64() != expected {
		return ErrDelegateInvalidNonce
	}
	if new(big.Int).SetUint64(ctx.Timestamp()).Cmp(expiry) > 0 {
		return ErrDelegateExpired
	}
	return t.delegate(ctx, signer, delegatee)
}
