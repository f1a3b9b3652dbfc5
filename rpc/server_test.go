package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ndxgov/core/chain"
	"ndxgov/core/events"
	"ndxgov/core/genesis"
	"ndxgov/core/types"
	"ndxgov/crypto"
	"ndxgov/native/erc20"
	"ndxgov/native/token"
	"ndxgov/storage"
)

const testChainID = 7

type testNode struct {
	chain  *chain.Chain
	server *Server
	http   *httptest.Server
	hub    *Hub
	key    *crypto.PrivateKey
}

func newTestNode(t *testing.T, cfg Config) *testNode {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	hub := NewHub()
	t.Cleanup(hub.Close)
	c, err := chain.New(storage.NewMemDB(), chain.NewManualClock(0, 0),
		chain.WithChainID(testChainID), chain.WithEmitter(hub))
	require.NoError(t, err)
	genesis.Register(c)
	spec, err := genesis.Parse([]byte(fmt.Sprintf(
		"chainId: %d\ngenesisTime: \"2021-01-01T00:00:00Z\"\ntoken:\n  holder: %s\n",
		testChainID, key.Address().Hex())))
	require.NoError(t, err)
	_, err = genesis.Build(c, spec)
	require.NoError(t, err)

	srv := NewServer(c, nil, hub, cfg, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testNode{chain: c, server: srv, http: ts, hub: hub, key: key}
}

func (n *testNode) call(t *testing.T, header http.Header, method string, params ...interface{}) (int, Response) {
	t.Helper()
	raw := make([]json.RawMessage, len(params))
	for i, p := range params {
		b, err := json.Marshal(p)
		require.NoError(t, err)
		raw[i] = b
	}
	body, err := json.Marshal(Request{JSONRPC: jsonRPCVersion, Method: method, Params: raw, ID: 1})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, n.http.URL, bytes.NewReader(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := n.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func decodeResult(t *testing.T, resp Response, v interface{}) {
	t.Helper()
	require.Nil(t, resp.Error)
	b, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, v))
}

func (n *testNode) transfer(t *testing.T, nonce uint64, to crypto.Address, amount int64) *types.Transaction {
	t.Helper()
	tx := &types.Transaction{
		ChainID:   testChainID,
		Nonce:     nonce,
		To:        genesis.TokenAddress,
		Signature: erc20.SigTransfer,
		Data:      chain.MustPack(erc20.SigTransfer, to, big.NewInt(amount)),
	}
	require.NoError(t, tx.Sign(n.key))
	return tx
}

func TestReadMethods(t *testing.T) {
	n := newTestNode(t, Config{})
	holder := n.key.Address()

	_, resp := n.call(t, nil, "ndx_getBalance", holder.String())
	var balance BalanceResult
	decodeResult(t, resp, &balance)
	require.Equal(t, token.InitialSupply.String(), balance.Balance)
	require.Equal(t, genesis.TokenAddress.String(), balance.Token)
	require.Equal(t, "0", balance.Native)

	_, resp = n.call(t, nil, "ndx_getVotes", holder.Hex())
	var votes VotesResult
	decodeResult(t, resp, &votes)
	require.Equal(t, holder.String(), votes.Delegate)
	require.Equal(t, token.InitialSupply.String(), votes.Votes)

	_, resp = n.call(t, nil, "ndx_getPriorVotes", holder.String(), 1)
	decodeResult(t, resp, &votes)
	require.Equal(t, token.InitialSupply.String(), votes.Votes)

	_, resp = n.call(t, nil, "ndx_getBlock", "latest")
	var block BlockResult
	decodeResult(t, resp, &block)
	require.Equal(t, uint64(1), block.Height)
	require.True(t, strings.HasPrefix(block.Hash, "0x"))

	status, resp := n.call(t, nil, "ndx_getBlock", 9)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	status, resp = n.call(t, nil, "ndx_getProposal", 1)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, codeServerError, resp.Error.Code)

	_, resp = n.call(t, nil, "ndx_getMetaState", 1)
	require.Equal(t, codeServerError, resp.Error.Code)

	_, resp = n.call(t, nil, "ndx_getEvents", map[string]interface{}{})
	require.Equal(t, codeServerError, resp.Error.Code)

	status, resp = n.call(t, nil, "ndx_getBalance", "not-an-address")
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	status, resp = n.call(t, nil, "ndx_nope")
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestSendTransaction(t *testing.T) {
	n := newTestNode(t, Config{})
	recipient := crypto.ContractAddress("account/recipient")

	tx := n.transfer(t, 0, recipient, 100)
	_, resp := n.call(t, nil, "ndx_sendTransaction", tx)
	var sent SendResult
	decodeResult(t, resp, &sent)
	require.True(t, sent.Success, sent.Error)
	require.Equal(t, n.key.Address().String(), sent.From)
	require.Equal(t, uint64(2), sent.Height)

	_, resp = n.call(t, nil, "ndx_sendTransaction", tx)
	require.Equal(t, codeDuplicateTx, resp.Error.Code)

	_, resp = n.call(t, nil, "ndx_sendTransaction", n.transfer(t, 0, recipient, 5))
	require.Equal(t, codeInvalidParams, resp.Error.Code)
	require.Contains(t, resp.Error.Message, "nonce")

	// A revert consumes the nonce and is reported in the result.
	_, resp = n.call(t, nil, "ndx_sendTransaction", n.transfer(t, 1, crypto.Address{}, 5))
	decodeResult(t, resp, &sent)
	require.False(t, sent.Success)
	require.NotEmpty(t, sent.Error)

	_, resp = n.call(t, nil, "ndx_getNonce", n.key.Address().String())
	var nonce uint64
	decodeResult(t, resp, &nonce)
	require.Equal(t, uint64(2), nonce)

	_, resp = n.call(t, nil, "ndx_getBalance", recipient.String())
	var balance BalanceResult
	decodeResult(t, resp, &balance)
	require.Equal(t, "100", balance.Balance)

	unsigned := n.transfer(t, 2, recipient, 1)
	unsigned.R, unsigned.S = nil, nil
	_, resp = n.call(t, nil, "ndx_sendTransaction", unsigned)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestSendRequiresBearerToken(t *testing.T) {
	secret := strings.Repeat("s", 32)
	n := newTestNode(t, Config{JWTSecret: secret})
	recipient := crypto.ContractAddress("account/recipient")

	status, resp := n.call(t, nil, "ndx_sendTransaction", n.transfer(t, 0, recipient, 1))
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	forged, err := IssueToken(strings.Repeat("x", 32), "cli", time.Minute)
	require.NoError(t, err)
	status, _ = n.call(t, http.Header{"Authorization": {"Bearer " + forged}}, "ndx_sendTransaction", n.transfer(t, 0, recipient, 1))
	require.Equal(t, http.StatusUnauthorized, status)

	valid, err := IssueToken(secret, "cli", time.Minute)
	require.NoError(t, err)
	status, resp = n.call(t, http.Header{"Authorization": {"Bearer " + valid}}, "ndx_sendTransaction", n.transfer(t, 0, recipient, 1))
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)

	// Reads stay open.
	status, _ = n.call(t, nil, "ndx_getNonce", recipient.String())
	require.Equal(t, http.StatusOK, status)
}

func TestSendRateLimited(t *testing.T) {
	n := newTestNode(t, Config{RequestsPerMinute: 1, Burst: 1})
	recipient := crypto.ContractAddress("account/recipient")

	status, _ := n.call(t, nil, "ndx_sendTransaction", n.transfer(t, 0, recipient, 1))
	require.Equal(t, http.StatusOK, status)
	status, resp := n.call(t, nil, "ndx_sendTransaction", n.transfer(t, 1, recipient, 1))
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, codeRateLimited, resp.Error.Code)
}

func TestRateLimiterRefills(t *testing.T) {
	l := NewRateLimiter(60, 1)
	now := time.Unix(1_000, 0)
	l.now = func() time.Time { return now }
	require.True(t, l.Allow("a"))
	require.False(t, l.Allow("a"))
	require.True(t, l.Allow("b"))
	now = now.Add(time.Second)
	require.True(t, l.Allow("a"))

	require.True(t, NewRateLimiter(0, 0).Allow("a"))
}

func TestHealthz(t *testing.T) {
	n := newTestNode(t, Config{})
	resp, err := n.http.Client().Get(n.http.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])
	require.EqualValues(t, testChainID, body["chainId"])
	require.EqualValues(t, 1, body["height"])
}

func TestHubDeliversCommittedLogs(t *testing.T) {
	n := newTestNode(t, Config{})
	ch, cancel := n.hub.Subscribe()
	defer cancel()

	recipient := crypto.ContractAddress("account/recipient")
	_, resp := n.call(t, nil, "ndx_sendTransaction", n.transfer(t, 0, recipient, 7))
	require.Nil(t, resp.Error)

	select {
	case evt := <-ch:
		require.Equal(t, events.TypeTransfer, evt.Type)
		require.Equal(t, "erc20", evt.Module)
		require.Equal(t, genesis.TokenAddress.String(), evt.Address)
		require.Equal(t, "7", evt.Attributes["amount"])
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
}
