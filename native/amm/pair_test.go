package amm

import (
	"errors"
	"testing"

	"ndxgov/crypto"
)

func TestPairForMainnetPair(t *testing.T) {
	// USDC/WETH on the Uniswap V2 mainnet factory.
	factory := crypto.MustParseAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
	usdc := crypto.MustParseAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth := crypto.MustParseAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	want := crypto.MustParseAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")

	got, err := PairFor(factory, usdc, weth)
	if err != nil {
		t.Fatalf("PairFor: %v", err)
	}
	if got != want {
		t.Fatalf("pair %s, want %s", got.Hex(), want.Hex())
	}
	reversed, err := PairFor(factory, weth, usdc)
	if err != nil || reversed != got {
		t.Fatalf("pair must not depend on argument order: %s, %v", reversed.Hex(), err)
	}
}

func TestSortTokensRejectsBadInput(t *testing.T) {
	a := crypto.ContractAddress("a")
	if _, _, err := SortTokens(a, a); !errors.Is(err, ErrIdenticalAddresses) {
		t.Fatalf("expected ErrIdenticalAddresses, got %v", err)
	}
	if _, _, err := SortTokens(a, crypto.Address{}); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
}
