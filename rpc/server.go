// Package rpc serves the node's JSON-RPC 2.0 interface and event stream.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ndxgov/core/chain"
	"ndxgov/core/genesis"
	"ndxgov/crypto"
	"ndxgov/indexer"
	"ndxgov/observability/metrics"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20
	txSeenTTL       = 15 * time.Minute
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeDuplicateTx    = -32010
	codeRateLimited    = -32020
)

type Request struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

func invalidParams(message string, err error) *Error {
	e := &Error{Code: codeInvalidParams, Message: message}
	if err != nil {
		e.Data = err.Error()
	}
	return e
}

func serverError(message string, err error) *Error {
	e := &Error{Code: codeServerError, Message: message}
	if err != nil {
		e.Data = err.Error()
	}
	return e
}

// Addresses locates the system contracts queried by the read methods.
type Addresses struct {
	Token          crypto.Address
	Governor       crypto.Address
	MetaGov        crypto.Address
	StakingFactory crypto.Address
}

// DefaultAddresses are the genesis deployment addresses.
func DefaultAddresses() Addresses {
	return Addresses{
		Token:          genesis.TokenAddress,
		Governor:       genesis.GovernorAddress,
		MetaGov:        genesis.MetaGovAddress,
		StakingFactory: genesis.StakingFactoryAddress,
	}
}

type Config struct {
	JWTSecret         string
	RequestsPerMinute int
	Burst             int
	Addresses         Addresses
}

type handlerFunc func(ctx context.Context, params []json.RawMessage) (interface{}, *Error)

type Server struct {
	chain   *chain.Chain
	index   *indexer.Indexer
	hub     *Hub
	cfg     Config
	logger  *slog.Logger
	auth    *Authenticator
	limiter *RateLimiter
	methods map[string]handlerFunc

	mu     sync.Mutex
	txSeen map[[32]byte]time.Time

	serverMu   sync.Mutex
	httpServer *http.Server
}

// NewServer wires the handlers. index and hub may be nil, in which case
// ndx_getEvents and /ws report the feature as unavailable.
func NewServer(c *chain.Chain, index *indexer.Indexer, hub *Hub, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Addresses == (Addresses{}) {
		cfg.Addresses = DefaultAddresses()
	}
	s := &Server{
		chain:   c,
		index:   index,
		hub:     hub,
		cfg:     cfg,
		logger:  logger,
		auth:    NewAuthenticator(cfg.JWTSecret),
		limiter: NewRateLimiter(cfg.RequestsPerMinute, cfg.Burst),
		txSeen:  make(map[[32]byte]time.Time),
	}
	s.methods = map[string]handlerFunc{
		"ndx_getBalance":       s.getBalance,
		"ndx_getNonce":         s.getNonce,
		"ndx_getVotes":         s.getVotes,
		"ndx_getPriorVotes":    s.getPriorVotes,
		"ndx_getProposal":      s.getProposal,
		"ndx_getProposalState": s.getProposalState,
		"ndx_getReceipt":       s.getReceipt,
		"ndx_getMetaState":     s.getMetaState,
		"ndx_getPool":          s.getPool,
		"ndx_getEarned":        s.getEarned,
		"ndx_getStakingTokens": s.getStakingTokens,
		"ndx_getVester":        s.getVester,
		"ndx_getBlock":         s.getBlock,
		"ndx_getEvents":        s.getEvents,
		"ndx_sendTransaction":  s.sendTransaction,
	}
	return s
}

// Handler returns the router: JSON-RPC on /, plus /healthz, /metrics and /ws.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Post("/", s.handle)
	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.handleWS)
	return otelhttp.NewHandler(r, "ndx-rpc")
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.serverMu.Lock()
	s.httpServer = srv
	s.serverMu.Unlock()
	s.logger.Info("rpc listening", slog.String("addr", l.Addr().String()))
	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.serverMu.Lock()
	srv := s.httpServer
	s.serverMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{"status": "ok", "chainId": s.chain.ChainID()}
	if head := s.chain.Head(); head != nil {
		resp["height"] = head.Height
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, status int, id interface{}, rpcErr *Error) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(Response{JSONRPC: jsonRPCVersion, ID: id, Error: rpcErr})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	_ = json.NewEncoder(w).Encode(Response{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func statusFor(code int) int {
	switch code {
	case codeUnauthorized:
		return http.StatusUnauthorized
	case codeRateLimited:
		return http.StatusTooManyRequests
	case codeMethodNotFound:
		return http.StatusNotFound
	case codeServerError:
		return http.StatusOK
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-Id", uuid.NewString())

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, &Error{Code: codeInvalidRequest, Message: message})
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, &Error{Code: codeInvalidRequest, Message: "request body required"})
		return
	}
	req := &Request{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, &Error{Code: codeParseError, Message: "invalid JSON payload", Data: err.Error()})
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, &Error{Code: codeInvalidRequest, Message: "unsupported jsonrpc version", Data: req.JSONRPC})
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, &Error{Code: codeInvalidRequest, Message: "method required"})
		return
	}
	handler, ok := s.methods[req.Method]
	if !ok {
		s.observe(req.Method, codeMethodNotFound, start)
		writeError(w, http.StatusNotFound, req.ID, &Error{Code: codeMethodNotFound, Message: "method not found", Data: req.Method})
		return
	}
	if req.Method == "ndx_sendTransaction" {
		if rpcErr := s.admit(r); rpcErr != nil {
			s.observe(req.Method, rpcErr.Code, start)
			writeError(w, statusFor(rpcErr.Code), req.ID, rpcErr)
			return
		}
	}
	result, rpcErr := handler(r.Context(), req.Params)
	if rpcErr != nil {
		s.observe(req.Method, rpcErr.Code, start)
		writeError(w, statusFor(rpcErr.Code), req.ID, rpcErr)
		return
	}
	s.observe(req.Method, 0, start)
	writeResult(w, req.ID, result)
}

// admit applies authentication and rate limiting to state changing calls.
func (s *Server) admit(r *http.Request) *Error {
	if err := s.auth.Authenticate(r); err != nil {
		return &Error{Code: codeUnauthorized, Message: err.Error()}
	}
	if !s.limiter.Allow(clientSource(r)) {
		metrics.RPC().ObserveRateLimited()
		return &Error{Code: codeRateLimited, Message: "transaction rate limit exceeded"}
	}
	return nil
}

func (s *Server) observe(method string, code int, start time.Time) {
	metrics.RPC().Observe(method, strconv.Itoa(code), time.Since(start))
}

func clientSource(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// rememberTx reports whether hash is new, expiring entries older than
// txSeenTTL.
func (s *Server) rememberTx(hash [32]byte, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for h, seen := range s.txSeen {
		if now.Sub(seen) > txSeenTTL {
			delete(s.txSeen, h)
		}
	}
	if _, ok := s.txSeen[hash]; ok {
		return false
	}
	s.txSeen[hash] = now
	return true
}

func (s *Server) forgetTx(hash [32]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.txSeen, hash)
}
