// Package amm derives Uniswap V2 pair identifiers without deploying pairs.
package amm

import (
	"bytes"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"ndxgov/crypto"
)

var (
	ErrIdenticalAddresses = errors.New("amm: identical addresses")
	ErrZeroAddress        = errors.New("amm: zero address")
)

// PairInitCodeHash is the keccak256 of the UniswapV2Pair creation code.
var PairInitCodeHash = common.FromHex("0x96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f")

// SortTokens orders two distinct tokens by address.
func SortTokens(a, b crypto.Address) (crypto.Address, crypto.Address, error) {
	if a == b {
		return crypto.Address{}, crypto.Address{}, ErrIdenticalAddresses
	}
	token0, token1 := a, b
	if bytes.Compare(a[:], b[:]) > 0 {
		token0, token1 = b, a
	}
	if token0.IsZero() {
		return crypto.Address{}, crypto.Address{}, ErrZeroAddress
	}
	return token0, token1, nil
}

// PairFor returns the CREATE2 address of the a/b pair deployed by factory.
func PairFor(factory, a, b crypto.Address) (crypto.Address, error) {
	token0, token1, err := SortTokens(a, b)
	if err != nil {
		return crypto.Address{}, err
	}
	salt := ethcrypto.Keccak256Hash(token0.Bytes(), token1.Bytes())
	return crypto.CreateAddress2(factory, salt, PairInitCodeHash), nil
}
