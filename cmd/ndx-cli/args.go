package main

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"ndxgov/core/chain"
	"ndxgov/crypto"
)

// encodeCall packs command line arguments for signature. Arrays are comma
// separated, bytes are 0x hex and integers are decimal or 0x hex.
func encodeCall(signature string, raw []string) (string, []byte, error) {
	method, err := chain.ParseMethod(signature)
	if err != nil {
		return "", nil, err
	}
	if len(raw) != len(method.Inputs) {
		return "", nil, fmt.Errorf("%s takes %d arguments, got %d", method.Canonical, len(method.Inputs), len(raw))
	}
	values := make([]interface{}, len(raw))
	for i, arg := range method.Inputs {
		v, err := parseArg(arg.Type, raw[i])
		if err != nil {
			return "", nil, fmt.Errorf("argument %d (%s): %w", i, arg.Type.String(), err)
		}
		values[i] = v
	}
	data, err := method.Encode(values...)
	if err != nil {
		return "", nil, err
	}
	return method.Canonical, data, nil
}

func parseArg(t abi.Type, raw string) (interface{}, error) {
	raw = strings.TrimSpace(raw)
	switch t.T {
	case abi.AddressTy:
		return crypto.ParseAddress(raw)
	case abi.UintTy, abi.IntTy:
		return parseBig(raw)
	case abi.BoolTy:
		return strconv.ParseBool(raw)
	case abi.StringTy:
		return raw, nil
	case abi.BytesTy:
		return hexutil.Decode(raw)
	case abi.FixedBytesTy:
		b, err := hexutil.Decode(raw)
		if err != nil {
			return nil, err
		}
		if len(b) != t.Size {
			return nil, fmt.Errorf("want %d bytes, got %d", t.Size, len(b))
		}
		if t.Size != 32 {
			return nil, fmt.Errorf("unsupported fixed bytes size %d", t.Size)
		}
		var out [32]byte
		copy(out[:], b)
		return out, nil
	case abi.SliceTy:
		parts := []string{}
		if raw != "" {
			parts = strings.Split(raw, ",")
		}
		switch t.Elem.T {
		case abi.AddressTy:
			out := make([]crypto.Address, len(parts))
			for i, p := range parts {
				addr, err := crypto.ParseAddress(strings.TrimSpace(p))
				if err != nil {
					return nil, err
				}
				out[i] = addr
			}
			return out, nil
		case abi.UintTy, abi.IntTy:
			out := make([]*big.Int, len(parts))
			for i, p := range parts {
				n, err := parseBig(strings.TrimSpace(p))
				if err != nil {
					return nil, err
				}
				out[i] = n
			}
			return out, nil
		case abi.StringTy:
			out := make([]string, len(parts))
			for i, p := range parts {
				out[i] = strings.TrimSpace(p)
			}
			return out, nil
		case abi.BytesTy:
			out := make([][]byte, len(parts))
			for i, p := range parts {
				b, err := hexutil.Decode(strings.TrimSpace(p))
				if err != nil {
					return nil, err
				}
				out[i] = b
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("unsupported argument type %s", t.String())
}

// parseBig accepts decimal, 0x hex and the 1000e18 shorthand.
func parseBig(raw string) (*big.Int, error) {
	if mantissa, exp, ok := strings.Cut(raw, "e"); ok && !strings.HasPrefix(raw, "0x") {
		m, good := new(big.Int).SetString(mantissa, 10)
		if !good {
			return nil, fmt.Errorf("invalid integer %q", raw)
		}
		e, err := strconv.ParseUint(exp, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid exponent in %q", raw)
		}
		return m.Mul(m, new(big.Int).Exp(big.NewInt(10), new(big.Int).SetUint64(e), nil)), nil
	}
	n, ok := new(big.Int).SetString(raw, 0)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", raw)
	}
	return n, nil
}
