package events

import (
	"math/big"

	"ndxgov/crypto"
)

// FormatAmount renders an integer amount for event attributes.
func FormatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

// FormatAddress renders an account for event attributes.
func FormatAddress(addr crypto.Address) string {
	return addr.String()
}
