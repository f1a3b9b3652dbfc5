package rpc

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"ndxgov/crypto"
)

func param(params []json.RawMessage, i int, name string) (json.RawMessage, *Error) {
	if i >= len(params) || len(params[i]) == 0 || string(params[i]) == "null" {
		return nil, invalidParams(fmt.Sprintf("%s parameter required", name), nil)
	}
	return params[i], nil
}

func addressParam(params []json.RawMessage, i int, name string) (crypto.Address, *Error) {
	raw, rpcErr := param(params, i, name)
	if rpcErr != nil {
		return crypto.Address{}, rpcErr
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return crypto.Address{}, invalidParams(fmt.Sprintf("invalid %s parameter", name), err)
	}
	addr, err := crypto.ParseAddress(s)
	if err != nil {
		return crypto.Address{}, invalidParams(fmt.Sprintf("failed to decode %s", name), err)
	}
	return addr, nil
}

// uint64Param accepts a JSON number or a decimal/0x string.
func uint64Param(params []json.RawMessage, i int, name string) (uint64, *Error) {
	raw, rpcErr := param(params, i, name)
	if rpcErr != nil {
		return 0, rpcErr
	}
	var n uint64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, invalidParams(fmt.Sprintf("invalid %s parameter", name), err)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(s), 0, 64)
	if err != nil {
		return 0, invalidParams(fmt.Sprintf("invalid %s parameter", name), err)
	}
	return n, nil
}
