package chain

import (
	"fmt"
	"math/big"
	"strings"

	"ndxgov/core/events"
	"ndxgov/core/state"
	"ndxgov/core/types"
	"ndxgov/crypto"
)

// MaxCallDepth bounds nested contract calls within one transition.
const MaxCallDepth = 128

// Contract is an addressable ledger object that accepts ABI encoded calls.
// Invoke receives the callee frame: ctx.Self() is the contract and
// ctx.Caller() the immediate sender.
type Contract interface {
	Invoke(ctx *Context, method string, args Args) error
}

// Loader binds a registered contract kind to a deployed address.
type Loader func(addr crypto.Address) Contract

// Handler executes one entry point.
type Handler func(ctx *Context, args Args) error

// Dispatcher routes canonical signatures to handlers.
type Dispatcher map[string]Handler

// Invoke looks up the handler for method and runs it.
func (d Dispatcher) Invoke(ctx *Context, method string, args Args) error {
	h, ok := d[method]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}
	return h(ctx, args)
}

// Context is the execution frame of a single call. Frames share the state
// overlay and the transition's log buffer; only the addressing differs.
type Context struct {
	chain     *Chain
	height    uint64
	timestamp uint64
	origin    crypto.Address
	caller    crypto.Address
	self      crypto.Address
	depth     int
	logs      *[]events.Log
}

func (c *Context) State() *state.Manager { return c.chain.state }
func (c *Context) ChainID() uint64 { return c.chain.chainID }
func (c *Context) BlockNumber() uint64 { return c.height }
func (c *Context) Timestamp() uint64 { return c.timestamp }
func (c *Context) Caller() crypto.Address { return c.caller }
func (c *Context) Self() crypto.Address { return c.self }
func (c *Context) Origin() crypto.Address { return c.origin }
func (c *Context) Depth() int { return c.depth }

// Emit records a copy of evt attributed to the executing contract. Logs are
// only published if the enclosing transition commits. Events whose type is
// not namespaced by a module are dropped.
func (c *Context) Emit(evt *types.Event) {
	if evt == nil || c.logs == nil || evt.Validate() != nil {
		return
	}
	*c.logs = append(*c.logs, events.Log{
		Contract:  c.self,
		Height:    c.height,
		Timestamp: c.timestamp,
		Event:     evt.Clone(),
	})
}

// Enter returns the frame target observes when the current frame calls it.
func (c *Context) Enter(target crypto.Address) *Context {
	child := *c
	child.caller = c.self
	child.self = target
	child.depth = c.depth + 1
	return &child
}

// Call transfers value from the current frame to target and invokes the
// entry point named by signature with ABI encoded data. An empty signature is
// a plain value transfer. State and logs written by a failed call are rolled
// back before the error is returned.
func (c *Context) Call(target crypto.Address, value *big.Int, signature string, data []byte) error {
	if c.depth+1 > MaxCallDepth {
		return ErrCallDepth
	}
	st := c.State()
	snap := st.Snapshot()
	logMark := 0
	if c.logs != nil {
		logMark = len(*c.logs)
	}
	err := c.call(target, value, signature, data)
	if err != nil {
		st.RevertToSnapshot(snap)
		if c.logs != nil {
			*c.logs = (*c.logs)[:logMark]
		}
	}
	return err
}

func (c *Context) call(target crypto.Address, value *big.Int, signature string, data []byte) error {
	if value != nil && value.Sign() > 0 {
		if err := c.TransferValue(target, value); err != nil {
			return err
		}
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		if len(data) != 0 {
			return fmt.Errorf("%w: calldata without signature", ErrBadArgument)
		}
		return nil
	}
	method, err := ParseMethod(signature)
	if err != nil {
		return err
	}
	args, err := method.Decode(data)
	if err != nil {
		return err
	}
	contract, _, err := c.Lookup(target)
	if err != nil {
		return err
	}
	return contract.Invoke(c.Enter(target), method.Canonical, args)
}

// Invoke calls target with already decoded arguments.
func (c *Context) Invoke(target crypto.Address, signature string, values ...interface{}) error {
	data, err := Pack(signature, values...)
	if err != nil {
		return err
	}
	return c.Call(target, nil, signature, data)
}

// Deploy records a contract of the given kind at addr.
func (c *Context) Deploy(addr crypto.Address, kind string) error {
	if addr.IsZero() {
		return fmt.Errorf("%w: zero address", ErrBadArgument)
	}
	if _, ok := c.chain.loader(kind); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	existing, err := c.KindOf(addr)
	if err != nil {
		return err
	}
	if existing != "" {
		return fmt.Errorf("%w: %s", ErrAlreadyDeployed, addr)
	}
	return c.State().KVPut(codeKey(addr), kind)
}

// KindOf returns the contract kind deployed at addr, or "" for plain accounts.
func (c *Context) KindOf(addr crypto.Address) (string, error) {
	var kind string
	ok, err := c.State().KVGet(codeKey(addr), &kind)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return kind, nil
}

// Lookup binds the contract deployed at addr.
func (c *Context) Lookup(addr crypto.Address) (Contract, string, error) {
	kind, err := c.KindOf(addr)
	if err != nil {
		return nil, "", err
	}
	if kind == "" {
		return nil, "", fmt.Errorf("%w: %s", ErrNoContract, addr)
	}
	load, ok := c.chain.loader(kind)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return load(addr), kind, nil
}

// RequireKind fails unless a contract of kind is deployed at addr.
func (c *Context) RequireKind(addr crypto.Address, kind string) error {
	got, err := c.KindOf(addr)
	if err != nil {
		return err
	}
	if got == "" {
		return fmt.Errorf("%w: %s", ErrNoContract, addr)
	}
	if got != kind {
		return fmt.Errorf("%w: %s is %s, want %s", ErrWrongKind, addr, got, kind)
	}
	return nil
}

// NativeBalance returns the native coin balance of addr.
func (c *Context) NativeBalance(addr crypto.Address) (*big.Int, error) {
	return readNative(c.State(), addr)
}

// TransferValue moves native coin from the executing contract to to.
func (c *Context) TransferValue(to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("%w: negative value", ErrBadArgument)
	}
	return moveNative(c.State(), c.self, to, amount)
}

func readNative(st *state.Manager, addr crypto.Address) (*big.Int, error) {
	balance := new(big.Int)
	if _, err := st.KVGet(nativeKey(addr), balance); err != nil {
		return nil, err
	}
	return balance, nil
}

func moveNative(st *state.Manager, from, to crypto.Address, amount *big.Int) error {
	fromBal, err := readNative(st, from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientValue
	}
	if from == to {
		return nil
	}
	toBal, err := readNative(st, to)
	if err != nil {
		return err
	}
	if err := st.KVPut(nativeKey(from), fromBal.Sub(fromBal, amount)); err != nil {
		return err
	}
	return st.KVPut(nativeKey(to), toBal.Add(toBal, amount))
}

func codeKey(addr crypto.Address) []byte {
	return append([]byte("chain/code/"), addr.Bytes()...)
}

func nativeKey(addr crypto.Address) []byte {
	return append([]byte("chain/native/"), addr.Bytes()...)
}

func nonceKey(addr crypto.Address) []byte {
	return append([]byte("chain/nonce/"), addr.Bytes()...)
}
