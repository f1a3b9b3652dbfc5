package common

import (
	"math/big"
	"strings"

	"ndxgov/crypto"
)

// Store is the slice of the state manager contracts read and write through.
type Store interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// Key namespaces a storage slot under the owning contract. Parts are joined
// with '/' so keys remain readable when dumped.
func Key(contract crypto.Address, field string, parts ...[]byte) []byte {
	var b strings.Builder
	b.WriteString("ndx/")
	b.Write(contract.Bytes())
	b.WriteByte('/')
	b.WriteString(field)
	for _, p := range parts {
		b.WriteByte('/')
		b.Write(p)
	}
	return []byte(b.String())
}

// Uint64Bytes encodes n as a fixed width key part.
func Uint64Bytes(n uint64) []byte {
	var out [8]byte
	for i := 7; i >= 0; i-- {
		out[i] = byte(n)
		n >>= 8
	}
	return out[:]
}

// GetBig returns the integer at key, or zero when unset.
func GetBig(st Store, key []byte) (*big.Int, error) {
	out := new(big.Int)
	if _, err := st.KVGet(key, out); err != nil {
		return nil, err
	}
	return out, nil
}

// PutBig stores v at key. Zero clears the slot.
func PutBig(st Store, key []byte, v *big.Int) error {
	if v == nil || v.Sign() == 0 {
		return st.KVDelete(key)
	}
	return st.KVPut(key, v)
}

func GetUint64(st Store, key []byte) (uint64, error) {
	var out uint64
	_, err := st.KVGet(key, &out)
	return out, err
}

func PutUint64(st Store, key []byte, v uint64) error {
	if v == 0 {
		return st.KVDelete(key)
	}
	return st.KVPut(key, v)
}

func GetAddress(st Store, key []byte) (crypto.Address, error) {
	var out crypto.Address
	_, err := st.KVGet(key, &out)
	return out, err
}

func PutAddress(st Store, key []byte, v crypto.Address) error {
	if v.IsZero() {
		return st.KVDelete(key)
	}
	return st.KVPut(key, v)
}

func GetBool(st Store, key []byte) (bool, error) {
	var out bool
	_, err := st.KVGet(key, &out)
	return out, err
}

func PutBool(st Store, key []byte, v bool) error {
	if !v {
		return st.KVDelete(key)
	}
	return st.KVPut(key, v)
}

func GetString(st Store, key []byte) (string, error) {
	var out string
	_, err := st.KVGet(key, &out)
	return out, err
}

func PutString(st Store, key []byte, v string) error {
	if v == "" {
		return st.KVDelete(key)
	}
	return st.KVPut(key, v)
}
