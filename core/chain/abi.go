package chain

import (
	"fmt"
	"math/big"
	"reflect"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"ndxgov/crypto"
)

// Method is a parsed entry point signature such as "transfer(address,uint256)".
type Method struct {
	Name      string
	Canonical string
	Inputs    abi.Arguments
}

var methodCache sync.Map

// ParseMethod parses and caches a function signature. Whitespace is ignored and
// the aliases uint/int are widened to 256 bits. Tuple arguments are not
// supported.
func ParseMethod(signature string) (*Method, error) {
	if cached, ok := methodCache.Load(signature); ok {
		return cached.(*Method), nil
	}
	compact := strings.Join(strings.Fields(signature), "")
	open := strings.IndexByte(compact, '(')
	if open <= 0 || !strings.HasSuffix(compact, ")") {
		return nil, fmt.Errorf("%w: malformed signature %q", ErrBadArgument, signature)
	}
	name := compact[:open]
	inner := compact[open+1 : len(compact)-1]
	if strings.ContainsAny(inner, "()") {
		return nil, fmt.Errorf("%w: tuple arguments unsupported in %q", ErrBadArgument, signature)
	}
	var types []string
	if inner != "" {
		types = strings.Split(inner, ",")
	}
	inputs := make(abi.Arguments, 0, len(types))
	for i, raw := range types {
		canonical := canonicalType(raw)
		typ, err := abi.NewType(canonical, "", nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadArgument, err)
		}
		types[i] = canonical
		inputs = append(inputs, abi.Argument{Name: fmt.Sprintf("arg%d", i), Type: typ})
	}
	m := &Method{
		Name:      name,
		Canonical: name + "(" + strings.Join(types, ",") + ")",
		Inputs:    inputs,
	}
	methodCache.Store(signature, m)
	return m, nil
}

func canonicalType(t string) string {
	base, suffix := t, ""
	if idx := strings.IndexByte(t, '['); idx >= 0 {
		base, suffix = t[:idx], t[idx:]
	}
	switch base {
	case "uint":
		base = "uint256"
	case "int":
		base = "int256"
	}
	return base + suffix
}

// Decode unpacks ABI encoded calldata into positional arguments.
func (m *Method) Decode(data []byte) (Args, error) {
	values, err := m.Inputs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrBadArgument, m.Canonical, err)
	}
	return Args(values), nil
}

// Encode packs values for the method, converting ledger types (crypto.Address,
// plain integers) to the forms the ABI codec expects.
func (m *Method) Encode(values ...interface{}) ([]byte, error) {
	if len(values) != len(m.Inputs) {
		return nil, fmt.Errorf("%w: %s expects %d arguments, got %d", ErrBadArgument, m.Canonical, len(m.Inputs), len(values))
	}
	normalized := make([]interface{}, len(values))
	for i, v := range values {
		out, err := normalizeArg(m.Inputs[i].Type, v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s argument %d: %v", ErrBadArgument, m.Canonical, i, err)
		}
		normalized[i] = out
	}
	return m.Inputs.Pack(normalized...)
}

// Pack encodes calldata for signature.
func Pack(signature string, values ...interface{}) ([]byte, error) {
	m, err := ParseMethod(signature)
	if err != nil {
		return nil, err
	}
	return m.Encode(values...)
}

// MustPack is Pack for statically known arguments.
func MustPack(signature string, values ...interface{}) []byte {
	data, err := Pack(signature, values...)
	if err != nil {
		panic(err)
	}
	return data
}

func normalizeArg(t abi.Type, v interface{}) (interface{}, error) {
	switch t.T {
	case abi.AddressTy:
		switch addr := v.(type) {
		case crypto.Address:
			return addr.Common(), nil
		case common.Address:
			return addr, nil
		}
	case abi.UintTy, abi.IntTy:
		n, err := toBig(v)
		if err != nil {
			return nil, err
		}
		if t.Size != 8 && t.Size != 16 && t.Size != 32 && t.Size != 64 {
			return n, nil
		}
		if t.T == abi.IntTy {
			if !n.IsInt64() {
				return nil, fmt.Errorf("value %s overflows int%d", n, t.Size)
			}
			switch t.Size {
			case 8:
				return int8(n.Int64()), nil
			case 16:
				return int16(n.Int64()), nil
			case 32:
				return int32(n.Int64()), nil
			default:
				return n.Int64(), nil
			}
		}
		if n.Sign() < 0 || !n.IsUint64() {
			return nil, fmt.Errorf("value %s overflows uint%d", n, t.Size)
		}
		switch t.Size {
		case 8:
			return uint8(n.Uint64()), nil
		case 16:
			return uint16(n.Uint64()), nil
		case 32:
			return uint32(n.Uint64()), nil
		default:
			return n.Uint64(), nil
		}
	case abi.BytesTy:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case hexutil.Bytes:
			return []byte(b), nil
		}
	case abi.SliceTy, abi.ArrayTy:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			break
		}
		out := reflect.MakeSlice(reflect.SliceOf(t.Elem.GetType()), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elem, err := normalizeArg(*t.Elem, rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out.Index(i).Set(reflect.ValueOf(elem))
		}
		if t.T == abi.ArrayTy {
			arr := reflect.New(t.GetType()).Elem()
			reflect.Copy(arr, out)
			return arr.Interface(), nil
		}
		return out.Interface(), nil
	default:
		return v, nil
	}
	return nil, fmt.Errorf("unsupported value %T for %s", v, t.String())
}

func toBig(v interface{}) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		if n == nil {
			return new(big.Int), nil
		}
		return n, nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), nil
	case int32:
		return big.NewInt(int64(n)), nil
	case int:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case uint:
		return new(big.Int).SetUint64(uint64(n)), nil
	}
	return nil, fmt.Errorf("unsupported integer %T", v)
}

// Args holds decoded positional arguments.
type Args []interface{}

func (a Args) at(i int) (interface{}, error) {
	if i < 0 || i >= len(a) {
		return nil, fmt.Errorf("%w: missing argument %d", ErrBadArgument, i)
	}
	return a[i], nil
}

func (a Args) Address(i int) (crypto.Address, error) {
	v, err := a.at(i)
	if err != nil {
		return crypto.Address{}, err
	}
	switch addr := v.(type) {
	case common.Address:
		return crypto.Address(addr), nil
	case crypto.Address:
		return addr, nil
	}
	return crypto.Address{}, fmt.Errorf("%w: argument %d is %T, want address", ErrBadArgument, i, v)
}

func (a Args) Big(i int) (*big.Int, error) {
	v, err := a.at(i)
	if err != nil {
		return nil, err
	}
	n, err := toBig(v)
	if err != nil {
		return nil, fmt.Errorf("%w: argument %d: %v", ErrBadArgument, i, err)
	}
	return new(big.Int).Set(n), nil
}

func (a Args) Uint64(i int) (uint64, error) {
	n, err := a.Big(i)
	if err != nil {
		return 0, err
	}
	if n.Sign() < 0 || !n.IsUint64() {
		return 0, fmt.Errorf("%w: argument %d overflows uint64", ErrBadArgument, i)
	}
	return n.Uint64(), nil
}

func (a Args) Uint8(i int) (uint8, error) {
	n, err := a.Uint64(i)
	if err != nil {
		return 0, err
	}
	if n > 255 {
		return 0, fmt.Errorf("%w: argument %d overflows uint8", ErrBadArgument, i)
	}
	return uint8(n), nil
}

func (a Args) Bool(i int) (bool, error) {
	v, err := a.at(i)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: argument %d is %T, want bool", ErrBadArgument, i, v)
	}
	return b, nil
}

func (a Args) String(i int) (string, error) {
	v, err := a.at(i)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: argument %d is %T, want string", ErrBadArgument, i, v)
	}
	return s, nil
}

func (a Args) Bytes(i int) ([]byte, error) {
	v, err := a.at(i)
	if err != nil {
		return nil, err
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: argument %d is %T, want bytes", ErrBadArgument, i, v)
	}
	return b, nil
}

func (a Args) Bytes32(i int) ([32]byte, error) {
	v, err := a.at(i)
	if err != nil {
		return [32]byte{}, err
	}
	b, ok := v.([32]byte)
	if !ok {
		return [32]byte{}, fmt.Errorf("%w: argument %d is %T, want bytes32", ErrBadArgument, i, v)
	}
	return b, nil
}

func (a Args) Addresses(i int) ([]crypto.Address, error) {
	v, err := a.at(i)
	if err != nil {
		return nil, err
	}
	list, ok := v.([]common.Address)
	if !ok {
		return nil, fmt.Errorf("%w: argument %d is %T, want address[]", ErrBadArgument, i, v)
	}
	out := make([]crypto.Address, len(list))
	for j, addr := range list {
		out[j] = crypto.Address(addr)
	}
	return out, nil
}

func (a Args) Bigs(i int) ([]*big.Int, error) {
	v, err := a.at(i)
	if err != nil {
		return nil, err
	}
	list, ok := v.([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: argument %d is %T, want uint256[]", ErrBadArgument, i, v)
	}
	return list, nil
}

func (a Args) Strings(i int) ([]string, error) {
	v, err := a.at(i)
	if err != nil {
		return nil, err
	}
	list, ok := v.([]string)
	if !ok {
		return nil, fmt.Errorf("%w: argument %d is %T, want string[]", ErrBadArgument, i, v)
	}
	return list, nil
}

func (a Args) BytesList(i int) ([][]byte, error) {
	v, err := a.at(i)
	if err != nil {
		return nil, err
	}
	list, ok := v.([][]byte)
	if !ok {
		return nil, fmt.Errorf("%w: argument %d is %T, want bytes[]", ErrBadArgument, i, v)
	}
	return list, nil
}
