package types

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"ndxgov/crypto"
)

// Transaction is a signed request to invoke a contract entry point.
// Signature names the entry point in canonical ABI form, for example
// "transfer(address,uint256)", and Data carries the ABI encoded arguments.
type Transaction struct {
	ChainID   uint64         `json:"chainId"`
	Nonce     uint64         `json:"nonce"`
	To        crypto.Address `json:"to"`
	Value     *big.Int       `json:"value,omitempty"`
	Signature string         `json:"signature"`
	Data      hexutil.Bytes  `json:"data"`

	V uint8    `json:"v"`
	R *big.Int `json:"r"`
	S *big.Int `json:"s"`

	from *crypto.Address
}

type signingPayload struct {
	ChainID   uint64
	Nonce     uint64
	To        crypto.Address
	Value     *big.Int
	Signature string
	Data      []byte
}

// SigningHash is keccak256 over the RLP encoding of the unsigned fields.
func (tx *Transaction) SigningHash() ([32]byte, error) {
	var out [32]byte
	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() < 0 {
		return out, errors.New("types: negative transaction value")
	}
	encoded, err := rlp.EncodeToBytes(&signingPayload{
		ChainID:   tx.ChainID,
		Nonce:     tx.Nonce,
		To:        tx.To,
		Value:     value,
		Signature: strings.TrimSpace(tx.Signature),
		Data:      tx.Data,
	})
	if err != nil {
		return out, err
	}
	copy(out[:], ethcrypto.Keccak256(encoded))
	return out, nil
}

// Hash identifies the signed transaction.
func (tx *Transaction) Hash() ([32]byte, error) {
	var out [32]byte
	signing, err := tx.SigningHash()
	if err != nil {
		return out, err
	}
	r, s := tx.R, tx.S
	if r == nil {
		r = new(big.Int)
	}
	if s == nil {
		s = new(big.Int)
	}
	encoded, err := rlp.EncodeToBytes([]interface{}{signing[:], tx.V, r, s})
	if err != nil {
		return out, err
	}
	copy(out[:], ethcrypto.Keccak256(encoded))
	return out, nil
}

func (tx *Transaction) Sign(key *crypto.PrivateKey) error {
	hash, err := tx.SigningHash()
	if err != nil {
		return err
	}
	sig, err := key.Sign(hash[:])
	if err != nil {
		return err
	}
	tx.R = new(big.Int).SetBytes(sig[:32])
	tx.S = new(big.Int).SetBytes(sig[32:64])
	tx.V = sig[64] + 27
	tx.from = nil
	return nil
}

// From recovers the sender from the signature.
func (tx *Transaction) From() (crypto.Address, error) {
	if tx.from != nil {
		return *tx.from, nil
	}
	if tx.R == nil || tx.S == nil {
		return crypto.Address{}, fmt.Errorf("types: transaction is not signed")
	}
	hash, err := tx.SigningHash()
	if err != nil {
		return crypto.Address{}, err
	}
	var r, s [32]byte
	if len(tx.R.Bytes()) > 32 || len(tx.S.Bytes()) > 32 {
		return crypto.Address{}, crypto.ErrInvalidSignature
	}
	tx.R.FillBytes(r[:])
	tx.S.FillBytes(s[:])
	from, err := crypto.RecoverSigner(hash, tx.V, r, s)
	if err != nil {
		return crypto.Address{}, err
	}
	tx.from = &from
	return from, nil
}
