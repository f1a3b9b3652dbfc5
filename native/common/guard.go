package common

import (
	"errors"

	"ndxgov/crypto"
)

var ErrReentrant = errors.New("common: reentrant call")

// Guard acquires the reentrancy latch of contract. The returned release must
// be called once the guarded entry point finishes, whether or not it failed.
func Guard(st Store, contract crypto.Address) (func() error, error) {
	key := Key(contract, "guard")
	entered, err := GetBool(st, key)
	if err != nil {
		return nil, err
	}
	if entered {
		return nil, ErrReentrant
	}
	if err := PutBool(st, key, true); err != nil {
		return nil, err
	}
	return func() error { return PutBool(st, key, false) }, nil
}
