package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ndxgov/rpc"
)

const tokenTTL = 5 * time.Minute

type rpcClient struct {
	endpoint  string
	jwtSecret string
	http      *http.Client
}

func newRPCClient(endpoint, jwtSecret string) *rpcClient {
	return &rpcClient{
		endpoint:  strings.TrimSpace(endpoint),
		jwtSecret: strings.TrimSpace(jwtSecret),
		http:      &http.Client{Timeout: 15 * time.Second},
	}
}

// call posts one JSON-RPC request and decodes the result into out. A
// JSON-RPC error is returned as *rpc.Error.
func (c *rpcClient) call(method string, out interface{}, params ...interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.jwtSecret != "" {
		token, err := rpc.IssueToken(c.jwtSecret, "ndx-cli", tokenTTL)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var decoded struct {
		Result json.RawMessage `json:"result"`
		Error  *rpc.Error      `json:"error"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(decoded.Result, out)
}

func writeJSON(w io.Writer, v interface{}) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
