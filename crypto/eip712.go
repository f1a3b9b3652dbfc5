package crypto

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidSignature is returned when a typed-data signature cannot be
// recovered to a non-zero signer.
var ErrInvalidSignature = errors.New("crypto: invalid signature")

// DomainTypeHash is keccak256 of the EIP-712 domain type used by every
// signing domain in the ledger.
var DomainTypeHash = TypeHash("EIP712Domain(string name,uint256 chainId,address verifyingContract)")

// TypeHash hashes an EIP-712 type declaration.
func TypeHash(decl string) [32]byte {
	return crypto.Keccak256Hash([]byte(decl))
}

// DomainSeparator computes the EIP-712 domain hash for a named contract.
func DomainSeparator(name string, chainID uint64, verifyingContract Address) [32]byte {
	nameHash := crypto.Keccak256([]byte(name))
	return HashStruct(DomainTypeHash,
		nameHash,
		Uint256Word(new(big.Int).SetUint64(chainID)),
		AddressWord(verifyingContract),
	)
}

// HashStruct hashes a type hash followed by 32 byte encoded fields.
func HashStruct(typeHash [32]byte, words ...[]byte) [32]byte {
	buf := make([]byte, 0, 32*(len(words)+1))
	buf = append(buf, typeHash[:]...)
	for _, w := range words {
		buf = append(buf, common.LeftPadBytes(w, 32)...)
	}
	return crypto.Keccak256Hash(buf)
}

// TypedDataDigest returns keccak256(0x1901 || domain || structHash).
func TypedDataDigest(domain, structHash [32]byte) [32]byte {
	buf := make([]byte, 0, 66)
	buf = append(buf, 0x19, 0x01)
	buf = append(buf, domain[:]...)
	buf = append(buf, structHash[:]...)
	return crypto.Keccak256Hash(buf)
}

// Uint256Word encodes a non-negative integer as a 32 byte big-endian word.
func Uint256Word(v *big.Int) []byte {
	if v == nil {
		return make([]byte, 32)
	}
	return common.LeftPadBytes(v.Bytes(), 32)
}

// AddressWord left-pads an address to a 32 byte word.
func AddressWord(a Address) []byte {
	return common.LeftPadBytes(a[:], 32)
}

// BoolWord encodes a boolean as a 32 byte word.
func BoolWord(b bool) []byte {
	word := make([]byte, 32)
	if b {
		word[31] = 1
	}
	return word
}

// SignDigest signs a typed-data digest and splits the result into the
// v, r, s triple expected by permit style entry points (v is 27 or 28).
func SignDigest(key *PrivateKey, digest [32]byte) (uint8, [32]byte, [32]byte, error) {
	var r, s [32]byte
	sig, err := key.Sign(digest[:])
	if err != nil {
		return 0, r, s, err
	}
	copy(r[:], sig[:32])
	copy(s[:], sig[32:64])
	return sig[64] + 27, r, s, nil
}

// RecoverSigner returns the account that produced the v, r, s signature over
// digest. Malformed signatures yield ErrInvalidSignature.
func RecoverSigner(digest [32]byte, v uint8, r, s [32]byte) (Address, error) {
	if v < 27 {
		return Address{}, ErrInvalidSignature
	}
	recID := v - 27
	if !crypto.ValidateSignatureValues(recID, new(big.Int).SetBytes(r[:]), new(big.Int).SetBytes(s[:]), false) {
		return Address{}, ErrInvalidSignature
	}
	sig := make([]byte, 65)
	copy(sig[:32], r[:])
	copy(sig[32:64], s[:])
	sig[64] = recID
	pub, err := crypto.SigToPub(digest[:], sig)
	if err != nil {
		return Address{}, ErrInvalidSignature
	}
	signer := Address(crypto.PubkeyToAddress(*pub))
	if signer.IsZero() {
		return Address{}, ErrInvalidSignature
	}
	return signer, nil
}
