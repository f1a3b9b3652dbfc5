package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"lukechampine.com/blake3"

	"ndxgov/core/events"
	"ndxgov/core/state"
	"ndxgov/core/types"
	"ndxgov/crypto"
	"ndxgov/observability/metrics"
	"ndxgov/storage"
)

const DefaultChainID uint64 = 1

var headKey = []byte("chain/head")

func blockKey(height uint64) []byte {
	return []byte(fmt.Sprintf("chain/block/%d", height))
}

// Chain executes state transitions against a journaled view of the database.
// Transitions are serialised: each one either commits every write it made or
// none of them.
type Chain struct {
	mu      sync.Mutex
	db      storage.Database
	state   *state.Manager
	clock   Clock
	chainID uint64
	emitter events.Emitter
	logger  *slog.Logger
	tracer  trace.Tracer

	loadersMu sync.RWMutex
	loaders   map[string]Loader

	head         *types.Header
	blockDigest  [32]byte
	blockTxCount uint64
}

// Option customises a Chain.
type Option func(*Chain)

func WithEmitter(e events.Emitter) Option {
	return func(c *Chain) {
		if e != nil {
			c.emitter = e
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Chain) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithChainID(id uint64) Option {
	return func(c *Chain) {
		if id != 0 {
			c.chainID = id
		}
	}
}

// New opens a chain on db. If a sealed head exists the clock resumes from the
// block after it.
func New(db storage.Database, clock Clock, opts ...Option) (*Chain, error) {
	if db == nil {
		return nil, errors.New("chain: database required")
	}
	if clock == nil {
		clock = NewManualClock(1, 0)
	}
	c := &Chain{
		db:      db,
		state:   state.NewManager(db),
		clock:   clock,
		chainID: DefaultChainID,
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		tracer:  otel.Tracer("ndxgov/chain"),
		loaders: make(map[string]Loader),
	}
	for _, opt := range opts {
		opt(c)
	}
	var head types.Header
	ok, err := c.state.KVGet(headKey, &head)
	if err != nil {
		return nil, fmt.Errorf("chain: load head: %w", err)
	}
	if ok {
		c.head = &head
		_, ts := clock.Now()
		if ts < head.Timestamp {
			ts = head.Timestamp
		}
		clock.Set(head.Height+1, ts)
	}
	return c, nil
}

// Register makes a contract kind available for deployment and dispatch.
func (c *Chain) Register(kind string, load Loader) {
	c.loadersMu.Lock()
	defer c.loadersMu.Unlock()
	c.loaders[kind] = load
}

func (c *Chain) loader(kind string) (Loader, bool) {
	c.loadersMu.RLock()
	defer c.loadersMu.RUnlock()
	load, ok := c.loaders[kind]
	return load, ok
}

func (c *Chain) ChainID() uint64 { return c.chainID }
func (c *Chain) Clock() Clock { return c.clock }

func (c *Chain) frame(caller crypto.Address, logs *[]events.Log) *Context {
	height, ts := c.clock.Now()
	return &Context{
		chain:     c,
		height:    height,
		timestamp: ts,
		origin:    caller,
		caller:    caller,
		self:      caller,
		logs:      logs,
	}
}

// Execute runs fn as one transition with caller as the originating account.
// The top level frame has Self() == Caller() == caller, so handle methods
// invoked on it see caller as the sender.
func (c *Chain) Execute(caller crypto.Address, fn func(*Context) error) error {
	return c.execute(context.Background(), "call", caller, fn)
}

func (c *Chain) execute(ctx context.Context, kind string, caller crypto.Address, fn func(*Context) error) error {
	_, span := c.tracer.Start(ctx, "chain.execute", trace.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("caller", caller.String()),
	))
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	var logs []events.Log
	snap := c.state.Snapshot()
	if err := fn(c.frame(caller, &logs)); err != nil {
		c.state.RevertToSnapshot(snap)
		metrics.Chain().ObserveTransition(kind, false)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	digest, err := c.state.Commit()
	if err != nil {
		c.state.Discard()
		span.RecordError(err)
		return fmt.Errorf("chain: commit: %w", err)
	}
	c.blockDigest = chainDigest(c.blockDigest, digest)
	metrics.Chain().ObserveTransition(kind, true)
	span.SetAttributes(attribute.Int("logs", len(logs)))
	for _, log := range logs {
		c.emitter.Emit(log)
	}
	return nil
}

// View runs fn against current state and discards every write it makes.
func (c *Chain) View(fn func(*Context) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.state.Snapshot()
	defer c.state.RevertToSnapshot(snap)
	return fn(c.frame(crypto.Address{}, nil))
}

// Credit mints native coin to addr. It is used to seed genesis allocations.
func (c *Chain) Credit(addr crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: credit must be positive", ErrBadArgument)
	}
	return c.Execute(addr, func(ctx *Context) error {
		balance, err := ctx.NativeBalance(addr)
		if err != nil {
			return err
		}
		return ctx.State().KVPut(nativeKey(addr), balance.Add(balance, amount))
	})
}

// Nonce returns the next expected transaction nonce for addr.
func (c *Chain) Nonce(addr crypto.Address) (uint64, error) {
	var nonce uint64
	err := c.View(func(ctx *Context) error {
		_, err := ctx.State().KVGet(nonceKey(addr), &nonce)
		return err
	})
	return nonce, err
}

// NativeBalance returns the committed native balance of addr.
func (c *Chain) NativeBalance(addr crypto.Address) (*big.Int, error) {
	var out *big.Int
	err := c.View(func(ctx *Context) error {
		var err error
		out, err = ctx.NativeBalance(addr)
		return err
	})
	return out, err
}

// ApplyTransaction validates and executes a signed transaction. Validation
// failures return an error and leave state untouched. Once the nonce is
// accepted it is consumed even if the call reverts; the receipt reports the
// outcome.
func (c *Chain) ApplyTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if tx == nil {
		return nil, fmt.Errorf("%w: nil transaction", ErrBadArgument)
	}
	if tx.ChainID != c.chainID {
		return nil, fmt.Errorf("%w: got %d want %d", ErrWrongChainID, tx.ChainID, c.chainID)
	}
	from, err := tx.From()
	if err != nil {
		return nil, err
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, err
	}
	kind := methodName(tx.Signature)
	receipt := &types.Receipt{TxHash: hash, From: from.String()}

	var callErr error
	var logCount int
	err = c.execute(ctx, kind, from, func(frame *Context) error {
		var nonce uint64
		if _, err := frame.State().KVGet(nonceKey(from), &nonce); err != nil {
			return err
		}
		if tx.Nonce != nonce {
			return fmt.Errorf("%w: got %d want %d", ErrBadNonce, tx.Nonce, nonce)
		}
		if err := frame.State().KVPut(nonceKey(from), nonce+1); err != nil {
			return err
		}
		receipt.Height = frame.BlockNumber()
		callErr = frame.Call(tx.To, tx.Value, tx.Signature, tx.Data)
		logCount = len(*frame.logs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.blockTxCount++
	c.mu.Unlock()

	receipt.Success = callErr == nil
	receipt.Logs = logCount
	if callErr != nil {
		receipt.Error = callErr.Error()
		c.logger.Debug("transaction reverted",
			slog.String("tx", fmt.Sprintf("%x", hash)),
			slog.String("method", kind),
			slog.Any("error", callErr))
	}
	return receipt, nil
}

// Head returns the last sealed header, or nil before the first seal.
func (c *Chain) Head() *types.Header {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.head == nil {
		return nil
	}
	h := *c.head
	return &h
}

// Block returns the sealed header at height.
func (c *Chain) Block(height uint64) (*types.Header, error) {
	var header types.Header
	var found bool
	err := c.View(func(ctx *Context) error {
		var err error
		found, err = ctx.State().KVGet(blockKey(height), &header)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, storage.ErrNotFound
	}
	return &header, nil
}

// SealBlock closes the block being built and advances the clock to the next
// height. The next block's timestamp is the later of timestamp and the
// current one, so time never runs backwards.
func (c *Chain) SealBlock(timestamp uint64) (*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	height, ts := c.clock.Now()
	header := &types.Header{
		Height:      height,
		Timestamp:   ts,
		StateDigest: c.blockDigest,
		TxCount:     c.blockTxCount,
	}
	if c.head != nil {
		parent, err := c.head.Hash()
		if err != nil {
			return nil, err
		}
		header.ParentHash = parent
	}
	if err := c.state.KVPut(blockKey(height), header); err != nil {
		c.state.Discard()
		return nil, err
	}
	if err := c.state.KVPut(headKey, header); err != nil {
		c.state.Discard()
		return nil, err
	}
	if _, err := c.state.Commit(); err != nil {
		return nil, fmt.Errorf("chain: seal: %w", err)
	}
	c.head = header
	c.blockDigest = [32]byte{}
	c.blockTxCount = 0
	if timestamp < ts {
		timestamp = ts
	}
	c.clock.Set(height+1, timestamp)
	metrics.Chain().ObserveBlock(height)
	c.logger.Info("sealed block",
		slog.Uint64("height", height),
		slog.Uint64("txs", header.TxCount))
	out := *header
	return &out, nil
}

func chainDigest(prev, next [32]byte) [32]byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, prev[:]...)
	buf = append(buf, next[:]...)
	return blake3.Sum256(buf)
}

func methodName(signature string) string {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return "transfer_value"
	}
	if idx := strings.IndexByte(signature, '('); idx > 0 {
		return signature[:idx]
	}
	return signature
}
