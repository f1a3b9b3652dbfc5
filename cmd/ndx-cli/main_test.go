package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"ndxgov/core/chain"
	"ndxgov/core/genesis"
	"ndxgov/crypto"
	"ndxgov/native/token"
	"ndxgov/rpc"
	"ndxgov/storage"
)

const testPass = "correct horse"

func stubPassphrase(t *testing.T) {
	t.Helper()
	origNew, origLoad := newKeySource, keySource
	newKeySource = func() func() (string, error) { return func() (string, error) { return testPass, nil } }
	keySource = newKeySource
	t.Cleanup(func() { newKeySource, keySource = origNew, origLoad })
}

// startNode serves a genesis chain whose Ndx supply belongs to key.
func startNode(t *testing.T, key *crypto.PrivateKey) string {
	t.Helper()
	c, err := chain.New(storage.NewMemDB(), chain.NewManualClock(0, 0), chain.WithChainID(7))
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	genesis.Register(c)
	spec, err := genesis.Parse([]byte(fmt.Sprintf(
		"chainId: 7\ngenesisTime: \"2021-01-01T00:00:00Z\"\ntoken:\n  holder: %s\n", key.Address().Hex())))
	if err != nil {
		t.Fatalf("parse genesis: %v", err)
	}
	if _, err := genesis.Build(c, spec); err != nil {
		t.Fatalf("build genesis: %v", err)
	}
	srv := httptest.NewServer(rpc.NewServer(c, nil, nil, rpc.Config{}, nil).Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestEncodeCall(t *testing.T) {
	target := crypto.ContractAddress("target")
	sig, data, err := encodeCall("propose(address[], uint[], string[], bytes[], string)", []string{
		target.String(), "0", "setPendingAdmin(address)", "0x01", "upgrade",
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if sig != "propose(address[],uint256[],string[],bytes[],string)" {
		t.Fatalf("unexpected canonical signature %s", sig)
	}
	method, err := chain.ParseMethod(sig)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	args, err := method.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	targets, err := args.Addresses(0)
	if err != nil || len(targets) != 1 || targets[0] != target {
		t.Fatalf("unexpected targets %v (%v)", targets, err)
	}
	desc, err := args.String(4)
	if err != nil || desc != "upgrade" {
		t.Fatalf("unexpected description %q (%v)", desc, err)
	}

	if _, _, err := encodeCall("delegate(address)", nil); err == nil {
		t.Fatalf("expected arity error")
	}
	if _, _, err := encodeCall("castVote(uint256,bool)", []string{"1", "maybe"}); err == nil {
		t.Fatalf("expected bool parse error")
	}
}

func TestParseBig(t *testing.T) {
	cases := map[string]string{
		"42":      "42",
		"0x10":    "16",
		"1000e18": "1000000000000000000000",
	}
	for in, want := range cases {
		got, err := parseBig(in)
		if err != nil {
			t.Fatalf("parseBig(%q): %v", in, err)
		}
		if got.String() != want {
			t.Fatalf("parseBig(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := parseBig("ten"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestKeygenAndAddress(t *testing.T) {
	stubPassphrase(t)
	path := filepath.Join(t.TempDir(), "k.keystore")
	var stdout, stderr bytes.Buffer
	if code := run([]string{"keygen", "-out", path}, &stdout, &stderr); code != 0 {
		t.Fatalf("keygen exited %d: %s", code, stderr.String())
	}
	key, err := crypto.LoadFromKeystore(path, testPass)
	if err != nil {
		t.Fatalf("load keystore: %v", err)
	}
	if !strings.Contains(stdout.String(), key.Address().String()) {
		t.Fatalf("keygen output missing address: %s", stdout.String())
	}

	stdout.Reset()
	if code := run([]string{"address", "-key", path}, &stdout, &stderr); code != 0 {
		t.Fatalf("address exited %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), key.Address().Hex()) {
		t.Fatalf("address output missing hex form: %s", stdout.String())
	}

	if code := run([]string{"keygen", "-out", path}, &stdout, &stderr); code == 0 {
		t.Fatalf("keygen overwrote an existing keystore")
	}
}

func TestSendAndQuery(t *testing.T) {
	stubPassphrase(t)
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "holder.keystore")
	if err := crypto.SaveToKeystore(path, key, testPass); err != nil {
		t.Fatalf("save keystore: %v", err)
	}
	url := startNode(t, key)
	recipient := crypto.ContractAddress("account/recipient")

	var stdout, stderr bytes.Buffer
	code := run([]string{"send", "-rpc", url, "-key", path, "-chain-id", "7",
		"-to", genesis.TokenAddress.String(), "-sig", "transfer(address,uint256)",
		recipient.String(), "5e18"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("send exited %d: %s %s", code, stdout.String(), stderr.String())
	}
	var sent rpc.SendResult
	if err := json.Unmarshal(stdout.Bytes(), &sent); err != nil || !sent.Success {
		t.Fatalf("unexpected send result %s (%v)", stdout.String(), err)
	}

	stdout.Reset()
	if code := run([]string{"balance", "-rpc", url, recipient.String()}, &stdout, &stderr); code != 0 {
		t.Fatalf("balance exited %d: %s", code, stderr.String())
	}
	var balance rpc.BalanceResult
	if err := json.Unmarshal(stdout.Bytes(), &balance); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	want := new(big.Int).Mul(big.NewInt(5), big.NewInt(1_000_000_000_000_000_000))
	if balance.Balance != want.String() {
		t.Fatalf("recipient balance %s, want %s", balance.Balance, want)
	}

	stdout.Reset()
	if code := run([]string{"votes", "-rpc", url, key.Address().String()}, &stdout, &stderr); code != 0 {
		t.Fatalf("votes exited %d: %s", code, stderr.String())
	}
	var votes rpc.VotesResult
	if err := json.Unmarshal(stdout.Bytes(), &votes); err != nil {
		t.Fatalf("decode votes: %v", err)
	}
	if votes.Votes != new(big.Int).Sub(token.InitialSupply, want).String() {
		t.Fatalf("unexpected holder votes %s", votes.Votes)
	}

	stderr.Reset()
	if code := run([]string{"proposal", "-rpc", url, "1"}, &stdout, &stderr); code == 0 {
		t.Fatalf("expected proposal lookup to fail")
	}
	if !strings.Contains(stderr.String(), "RPC error -32000") {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}
