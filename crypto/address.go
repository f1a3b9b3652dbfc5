package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the human-readable part used for bech32 account strings.
const AddressPrefix = "ndx"

// AddressLength is the size of an account or contract identifier in bytes.
const AddressLength = 20

// Address identifies an account or a deployed contract.
type Address [AddressLength]byte

// ZeroAddress is the null identifier.
var ZeroAddress Address

// BytesToAddress converts b into an Address. Inputs longer than 20 bytes keep
// their trailing 20 bytes, matching EVM address truncation.
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

// ContractAddress derives a deterministic identifier for a named system
// contract.
func ContractAddress(name string) Address {
	return BytesToAddress(crypto.Keccak256([]byte(name)))
}

// CreateAddress2 derives the CREATE2 identifier of a contract deployed by
// deployer with the supplied salt and init code hash.
func CreateAddress2(deployer Address, salt [32]byte, initHash []byte) Address {
	return Address(crypto.CreateAddress2(common.Address(deployer), salt, initHash))
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(AddressPrefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Hex returns the 0x-prefixed lowercase hex form.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a[:])
	return out
}

func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// Common converts the address into the go-ethereum representation used by
// the ABI codec.
func (a Address) Common() common.Address {
	return common.Address(a)
}

// MarshalText encodes the address in bech32 form.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText accepts bech32 or 0x-prefixed hex.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// DecodeAddress parses a bech32 string carrying the ndx prefix.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if prefix != AddressPrefix {
		return Address{}, fmt.Errorf("unexpected address prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != AddressLength {
		return Address{}, fmt.Errorf("address must be %d bytes long", AddressLength)
	}
	return BytesToAddress(conv), nil
}

// ParseAddress accepts either the bech32 or the 0x hex representation.
func ParseAddress(raw string) (Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Address{}, fmt.Errorf("address required")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		decoded, err := hex.DecodeString(trimHexPrefix(trimmed))
		if err != nil {
			return Address{}, fmt.Errorf("invalid hex address: %w", err)
		}
		if len(decoded) != AddressLength {
			return Address{}, fmt.Errorf("address must be %d bytes long", AddressLength)
		}
		return BytesToAddress(decoded), nil
	}
	return DecodeAddress(strings.ToLower(trimmed))
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(raw string) Address {
	addr, err := ParseAddress(raw)
	if err != nil {
		panic(err)
	}
	return addr
}

func trimHexPrefix(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:]
	}
	return s
}
