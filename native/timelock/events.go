package timelock

import (
	"encoding/hex"
	"strconv"

	"ndxgov/core/events"
	"ndxgov/core/types"
	"ndxgov/crypto"
)

const (
	TypeNewAdmin           = "timelock.new_admin"
	TypeNewPendingAdmin    = "timelock.new_pending_admin"
	TypeNewDelay           = "timelock.new_delay"
	TypeQueueTransaction   = "timelock.queue_transaction"
	TypeCancelTransaction  = "timelock.cancel_transaction"
	TypeExecuteTransaction = "timelock.execute_transaction"
)

func newAdminEvent(admin crypto.Address) *types.Event {
	return &types.Event{Type: TypeNewAdmin, Attributes: map[string]string{
		"newAdmin": events.FormatAddress(admin),
	}}
}

func newPendingAdminEvent(pending crypto.Address) *types.Event {
	return &types.Event{Type: TypeNewPendingAdmin, Attributes: map[string]string{
		"newPendingAdmin": events.FormatAddress(pending),
	}}
}

func newDelayEvent(delay uint64) *types.Event {
	return &types.Event{Type: TypeNewDelay, Attributes: map[string]string{
		"newDelay": strconv.FormatUint(delay, 10),
	}}
}

func (q queuedTx) event(eventType string, hash [32]byte) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"txHash":    "0x" + hex.EncodeToString(hash[:]),
		"target":    events.FormatAddress(q.target),
		"value":     events.FormatAmount(q.value),
		"signature": q.signature,
		"data":      "0x" + hex.EncodeToString(q.data),
		"eta":       strconv.FormatUint(q.eta, 10),
	}}
}
