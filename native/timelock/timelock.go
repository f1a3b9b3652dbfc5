// Package timelock queues administrative calls and releases them only after
// a delay, within a grace window.
package timelock

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"ndxgov/core/chain"
	"ndxgov/crypto"
	nativecommon "ndxgov/native/common"
)

const (
	Kind = "timelock"

	GracePeriod  uint64 = 14 * 24 * 60 * 60
	MinimumDelay uint64 = 2 * 24 * 60 * 60
	MaximumDelay uint64 = 30 * 24 * 60 * 60
)

const (
	SigQueueTransaction   = "queueTransaction(address,uint256,string,bytes,uint256)"
	SigCancelTransaction  = "cancelTransaction(address,uint256,string,bytes,uint256)"
	SigExecuteTransaction = "executeTransaction(address,uint256,string,bytes,uint256)"
	SigSetDelay           = "setDelay(uint256)"
	SigSetPendingAdmin    = "setPendingAdmin(address)"
	SigAcceptAdmin        = "acceptAdmin()"
)

var (
	ErrDelayTooShort       = errors.New("timelock: delay must exceed minimum delay")
	ErrDelayTooLong        = errors.New("timelock: delay must not exceed maximum delay")
	ErrSetDelayNotSelf     = errors.New("timelock: setDelay must come from the timelock")
	ErrSetDelayTooShort    = errors.New("timelock: new delay must exceed minimum delay")
	ErrSetDelayTooLong     = errors.New("timelock: new delay must not exceed maximum delay")
	ErrNotPendingAdmin     = errors.New("timelock: acceptAdmin must come from the pending admin")
	ErrPendingAdminNotSelf = errors.New("timelock: setPendingAdmin must come from the timelock")
	ErrQueueNotAdmin       = errors.New("timelock: queueTransaction must come from the admin")
	ErrEtaTooSoon          = errors.New("timelock: estimated execution block must satisfy delay")
	ErrCancelNotAdmin      = errors.New("timelock: cancelTransaction must come from the admin")
	ErrExecuteNotAdmin     = errors.New("timelock: executeTransaction must come from the admin")
	ErrNotQueued           = errors.New("timelock: transaction hasn't been queued")
	ErrNotReady            = errors.New("timelock: transaction hasn't surpassed time lock")
	ErrStale               = errors.New("timelock: transaction is stale")
	ErrExecutionReverted   = errors.New("timelock: transaction execution reverted")
)

var txHashArgs = func() abi.Arguments {
	mustType := func(name string) abi.Type {
		typ, err := abi.NewType(name, "", nil)
		if err != nil {
			panic(err)
		}
		return typ
	}
	return abi.Arguments{
		{Type: mustType("address")},
		{Type: mustType("uint256")},
		{Type: mustType("string")},
		{Type: mustType("bytes")},
		{Type: mustType("uint256")},
	}
}()

// TxHash identifies a queued call: keccak256(abi.encode(target, value,
// signature, data, eta)).
func TxHash(target crypto.Address, value *big.Int, signature string, data []byte, eta uint64) ([32]byte, error) {
	if value == nil {
		value = new(big.Int)
	}
	if data == nil {
		data = []byte{}
	}
	encoded, err := txHashArgs.Pack(target.Common(), value, signature, data, new(big.Int).SetUint64(eta))
	if err != nil {
		return [32]byte{}, err
	}
	return ethcrypto.Keccak256Hash(encoded), nil
}

// Timelock is a handle on a deployed timelock.
type Timelock struct {
	addr crypto.Address
}

func At(addr crypto.Address) *Timelock { return &Timelock{addr: addr} }

func Register(c *chain.Chain) {
	c.Register(Kind, func(addr crypto.Address) chain.Contract { return At(addr) })
}

// Deploy creates a timelock at addr administered by admin.
func Deploy(ctx *chain.Context, addr, admin crypto.Address, delay uint64) (*Timelock, error) {
	if delay < MinimumDelay {
		return nil, ErrDelayTooShort
	}
	if delay > MaximumDelay {
		return nil, ErrDelayTooLong
	}
	if err := ctx.Deploy(addr, Kind); err != nil {
		return nil, err
	}
	tl := At(addr)
	st := ctx.State()
	if err := nativecommon.PutAddress(st, tl.key("admin"), admin); err != nil {
		return nil, err
	}
	if err := nativecommon.PutUint64(st, tl.key("delay"), delay); err != nil {
		return nil, err
	}
	return tl, nil
}

func (tl *Timelock) key(field string, parts ...[]byte) []byte {
	return nativecommon.Key(tl.addr, field, parts...)
}

func (tl *Timelock) Address() crypto.Address { return tl.addr }

func (tl *Timelock) Admin(ctx *chain.Context) (crypto.Address, error) {
	return nativecommon.GetAddress(ctx.State(), tl.key("admin"))
}

func (tl *Timelock) PendingAdmin(ctx *chain.Context) (crypto.Address, error) {
	return nativecommon.GetAddress(ctx.State(), tl.key("pending_admin"))
}

func (tl *Timelock) Delay(ctx *chain.Context) (uint64, error) {
	return nativecommon.GetUint64(ctx.State(), tl.key("delay"))
}

// QueuedTransactions reports whether hash is currently queued.
func (tl *Timelock) QueuedTransactions(ctx *chain.Context, hash [32]byte) (bool, error) {
	return nativecommon.GetBool(ctx.State(), tl.key("queued", hash[:]))
}

func (tl *Timelock) QueueTransaction(ctx *chain.Context, target crypto.Address, value *big.Int, signature string, data []byte, eta uint64) error {
	return ctx.Invoke(tl.addr, SigQueueTransaction, target, value, signature, data, eta)
}

func (tl *Timelock) CancelTransaction(ctx *chain.Context, target crypto.Address, value *big.Int, signature string, data []byte, eta uint64) error {
	return ctx.Invoke(tl.addr, SigCancelTransaction, target, value, signature, data, eta)
}

// ExecuteTransaction forwards value from the calling frame along with the call.
func (tl *Timelock) ExecuteTransaction(ctx *chain.Context, target crypto.Address, value *big.Int, signature string, data []byte, eta uint64) error {
	payload, err := chain.Pack(SigExecuteTransaction, target, value, signature, data, eta)
	if err != nil {
		return err
	}
	return ctx.Call(tl.addr, value, SigExecuteTransaction, payload)
}

func (tl *Timelock) SetPendingAdmin(ctx *chain.Context, pending crypto.Address) error {
	return ctx.Invoke(tl.addr, SigSetPendingAdmin, pending)
}

func (tl *Timelock) AcceptAdmin(ctx *chain.Context) error {
	return ctx.Invoke(tl.addr, SigAcceptAdmin)
}

func (tl *Timelock) setDelay(ctx *chain.Context, delay uint64) error {
	if ctx.Caller() != tl.addr {
		return ErrSetDelayNotSelf
	}
	if delay < MinimumDelay {
		return ErrSetDelayTooShort
	}
	if delay > MaximumDelay {
		return ErrSetDelayTooLong
	}
	if err := nativecommon.PutUint64(ctx.State(), tl.key("delay"), delay); err != nil {
		return err
	}
	ctx.Emit(newDelayEvent(delay))
	return nil
}

func (tl *Timelock) acceptAdmin(ctx *chain.Context) error {
	pending, err := tl.PendingAdmin(ctx)
	if err != nil {
		return err
	}
	if ctx.Caller() != pending || pending.IsZero() {
		return ErrNotPendingAdmin
	}
	st := ctx.State()
	if err := nativecommon.PutAddress(st, tl.key("admin"), pending); err != nil {
		return err
	}
	if err := nativecommon.PutAddress(st, tl.key("pending_admin"), crypto.Address{}); err != nil {
		return err
	}
	ctx.Emit(newAdminEvent(pending))
	return nil
}

// setPendingAdmin may be called once by the initial admin to hand the
// timelock over; afterwards only the timelock itself may call it.
func (tl *Timelock) setPendingAdmin(ctx *chain.Context, pending crypto.Address) error {
	st := ctx.State()
	initialized, err := nativecommon.GetBool(st, tl.key("admin_initialized"))
	if err != nil {
		return err
	}
	if initialized {
		if ctx.Caller() != tl.addr {
			return ErrPendingAdminNotSelf
		}
	} else {
		admin, err := tl.Admin(ctx)
		if err != nil {
			return err
		}
		if ctx.Caller() != admin {
			return ErrPendingAdminNotSelf
		}
		if err := nativecommon.PutBool(st, tl.key("admin_initialized"), true); err != nil {
			return err
		}
	}
	if err := nativecommon.PutAddress(st, tl.key("pending_admin"), pending); err != nil {
		return err
	}
	ctx.Emit(newPendingAdminEvent(pending))
	return nil
}

func (tl *Timelock) requireAdmin(ctx *chain.Context, errNotAdmin error) error {
	admin, err := tl.Admin(ctx)
	if err != nil {
		return err
	}
	if ctx.Caller() != admin {
		return errNotAdmin
	}
	return nil
}

func (tl *Timelock) queueTransaction(ctx *chain.Context, tx queuedTx) error {
	if err := tl.requireAdmin(ctx, ErrQueueNotAdmin); err != nil {
		return err
	}
	delay, err := tl.Delay(ctx)
	if err != nil {
		return err
	}
	if tx.eta < ctx.Timestamp()+delay {
		return ErrEtaTooSoon
	}
	hash, err := tx.hash()
	if err != nil {
		return err
	}
	if err := nativecommon.PutBool(ctx.State(), tl.key("queued", hash[:]), true); err != nil {
		return err
	}
	ctx.Emit(tx.event(TypeQueueTransaction, hash))
	return nil
}

func (tl *Timelock) cancelTransaction(ctx *chain.Context, tx queuedTx) error {
	if err := tl.requireAdmin(ctx, ErrCancelNotAdmin); err != nil {
		return err
	}
	hash, err := tx.hash()
	if err != nil {
		return err
	}
	if err := nativecommon.PutBool(ctx.State(), tl.key("queued", hash[:]), false); err != nil {
		return err
	}
	ctx.Emit(tx.event(TypeCancelTransaction, hash))
	return nil
}

func (tl *Timelock) executeTransaction(ctx *chain.Context, tx queuedTx) error {
	if err := tl.requireAdmin(ctx, ErrExecuteNotAdmin); err != nil {
		return err
	}
	hash, err := tx.hash()
	if err != nil {
		return err
	}
	queued, err := tl.QueuedTransactions(ctx, hash)
	if err != nil {
		return err
	}
	if !queued {
		return ErrNotQueued
	}
	now := ctx.Timestamp()
	if now < tx.eta {
		return ErrNotReady
	}
	if now > tx.eta+GracePeriod {
		return ErrStale
	}
	if err := nativecommon.PutBool(ctx.State(), tl.key("queued", hash[:]), false); err != nil {
		return err
	}
	if err := ctx.Call(tx.target, tx.value, tx.signature, tx.data); err != nil {
		return fmt.Errorf("%w: %v", ErrExecutionReverted, err)
	}
	ctx.Emit(tx.event(TypeExecuteTransaction, hash))
	return nil
}

type queuedTx struct {
	target    crypto.Address
	value     *big.Int
	signature string
	data      []byte
	eta       uint64
}

func (q queuedTx) hash() ([32]byte, error) {
	return TxHash(q.target, q.value, q.signature, q.data, q.eta)
}

func decodeQueued(args chain.Args) (queuedTx, error) {
	var q queuedTx
	var err error
	if q.target, err = args.Address(0); err != nil {
		return q, err
	}
	if q.value, err = args.Big(1); err != nil {
		return q, err
	}
	if q.signature, err = args.String(2); err != nil {
		return q, err
	}
	if q.data, err = args.Bytes(3); err != nil {
		return q, err
	}
	if q.eta, err = args.Uint64(4); err != nil {
		return q, err
	}
	return q, nil
}

// Invoke implements chain.Contract.
func (tl *Timelock) Invoke(ctx *chain.Context, method string, args chain.Args) error {
	switch method {
	case SigQueueTransaction, SigCancelTransaction, SigExecuteTransaction:
		tx, err := decodeQueued(args)
		if err != nil {
			return err
		}
		switch method {
		case SigQueueTransaction:
			return tl.queueTransaction(ctx, tx)
		case SigCancelTransaction:
			return tl.cancelTransaction(ctx, tx)
		default:
			return tl.executeTransaction(ctx, tx)
		}
	case SigSetDelay:
		delay, err := args.Uint64(0)
		if err != nil {
			return err
		}
		return tl.setDelay(ctx, delay)
	case SigSetPendingAdmin:
		pending, err := args.Address(0)
		if err != nil {
			return err
		}
		return tl.setPendingAdmin(ctx, pending)
	case SigAcceptAdmin:
		return tl.acceptAdmin(ctx)
	}
	return fmt.Errorf("%w: %s", chain.ErrUnknownMethod, method)
}
