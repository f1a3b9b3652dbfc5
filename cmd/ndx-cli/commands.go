package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"ndxgov/cmd/internal/passphrase"
	"ndxgov/core/types"
	"ndxgov/crypto"
	"ndxgov/rpc"
)

// Overridden in tests.
var (
	newKeySource = func() func() (string, error) {
		return passphrase.ForNewKey(passphrase.DefaultEnvVar, "new keystore").Get
	}
	keySource = func() func() (string, error) {
		return passphrase.NewSource(passphrase.DefaultEnvVar).Get
	}
)

func fail(stderr io.Writer, err error) int {
	var rpcErr *rpc.Error
	if errors.As(err, &rpcErr) {
		fmt.Fprintf(stderr, "Error: RPC error %d: %s", rpcErr.Code, rpcErr.Message)
		if rpcErr.Data != nil {
			fmt.Fprintf(stderr, " (%v)", rpcErr.Data)
		}
		fmt.Fprintln(stderr)
		return 1
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", "ndx.keystore", "keystore file to create")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if _, err := os.Stat(*out); err == nil {
		return fail(stderr, fmt.Errorf("%s already exists", *out))
	}
	pass, err := newKeySource()()
	if err != nil {
		return fail(stderr, err)
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return fail(stderr, err)
	}
	if err := crypto.SaveToKeystore(*out, key, pass); err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintf(stdout, "Address: %s\nHex:     %s\nKeystore: %s\n", key.Address(), key.Address().Hex(), *out)
	return 0
}

func loadKey(path string) (*crypto.PrivateKey, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("-key is required")
	}
	pass, err := keySource()()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(path, pass)
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	fs.SetOutput(stderr)
	keyPath := fs.String("key", "", "keystore file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*keyPath) == "" {
		return fail(stderr, errors.New("-key is required"))
	}
	addr, err := crypto.KeystoreAddress(*keyPath)
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintf(stdout, "%s\n%s\n", addr, addr.Hex())
	return 0
}

func runSend(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		endpoint  = fs.String("rpc", defaultRPCEndpoint(), "node JSON-RPC endpoint")
		jwtSecret = fs.String("jwt-secret", os.Getenv(jwtSecretEnv), "shared secret used to sign the bearer token")
		keyPath   = fs.String("key", "", "keystore file of the sender")
		to        = fs.String("to", "", "target contract or account")
		sig       = fs.String("sig", "", `entry point, e.g. "delegate(address)"`)
		value     = fs.String("value", "0", "native value to attach")
		chainID   = fs.Uint64("chain-id", 1, "chain identifier")
		nonceFlag = fs.String("nonce", "", "explicit nonce (fetched from the node when empty)")
	)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	target, err := crypto.ParseAddress(*to)
	if err != nil {
		return fail(stderr, fmt.Errorf("-to: %w", err))
	}
	tx := &types.Transaction{ChainID: *chainID, To: target}
	if strings.TrimSpace(*sig) != "" {
		if tx.Signature, tx.Data, err = encodeCall(*sig, fs.Args()); err != nil {
			return fail(stderr, err)
		}
	} else if fs.NArg() > 0 {
		return fail(stderr, errors.New("arguments given without -sig"))
	}
	if tx.Value, err = parseBig(*value); err != nil {
		return fail(stderr, fmt.Errorf("-value: %w", err))
	}
	key, err := loadKey(*keyPath)
	if err != nil {
		return fail(stderr, err)
	}
	client := newRPCClient(*endpoint, *jwtSecret)
	if *nonceFlag != "" {
		if tx.Nonce, err = strconv.ParseUint(*nonceFlag, 10, 64); err != nil {
			return fail(stderr, fmt.Errorf("-nonce: %w", err))
		}
	} else if err := client.call("ndx_getNonce", &tx.Nonce, key.Address().String()); err != nil {
		return fail(stderr, err)
	}
	if err := tx.Sign(key); err != nil {
		return fail(stderr, err)
	}
	var result rpc.SendResult
	if err := client.call("ndx_sendTransaction", &result, tx); err != nil {
		return fail(stderr, err)
	}
	writeJSON(stdout, result)
	if !result.Success {
		return 2
	}
	return 0
}

func runBalance(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("balance", flag.ContinueOnError)
	fs.SetOutput(stderr)
	endpoint := fs.String("rpc", defaultRPCEndpoint(), "node JSON-RPC endpoint")
	token := fs.String("token", "", "ERC20 token (defaults to Ndx)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		return fail(stderr, errors.New("balance takes exactly one address"))
	}
	params := []interface{}{fs.Arg(0)}
	if *token != "" {
		params = append(params, *token)
	}
	var result rpc.BalanceResult
	if err := newRPCClient(*endpoint, "").call("ndx_getBalance", &result, params...); err != nil {
		return fail(stderr, err)
	}
	writeJSON(stdout, result)
	return 0
}

func runVotes(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("votes", flag.ContinueOnError)
	fs.SetOutput(stderr)
	endpoint := fs.String("rpc", defaultRPCEndpoint(), "node JSON-RPC endpoint")
	block := fs.Uint64("block", 0, "report prior votes at this block")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		return fail(stderr, errors.New("votes takes exactly one address"))
	}
	client := newRPCClient(*endpoint, "")
	var result rpc.VotesResult
	var err error
	if *block > 0 {
		err = client.call("ndx_getPriorVotes", &result, fs.Arg(0), *block)
	} else {
		err = client.call("ndx_getVotes", &result, fs.Arg(0))
	}
	if err != nil {
		return fail(stderr, err)
	}
	writeJSON(stdout, result)
	return 0
}

func runProposal(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("proposal", flag.ContinueOnError)
	fs.SetOutput(stderr)
	endpoint := fs.String("rpc", defaultRPCEndpoint(), "node JSON-RPC endpoint")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		return fail(stderr, errors.New("proposal takes exactly one id"))
	}
	id, err := strconv.ParseUint(fs.Arg(0), 10, 64)
	if err != nil {
		return fail(stderr, fmt.Errorf("invalid proposal id: %w", err))
	}
	var result rpc.ProposalResult
	if err := newRPCClient(*endpoint, "").call("ndx_getProposal", &result, id); err != nil {
		return fail(stderr, err)
	}
	writeJSON(stdout, result)
	return 0
}
