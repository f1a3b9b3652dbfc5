package types

import (
	"errors"
	"strings"
)

var (
	ErrEventType      = errors.New("types: event type must be <module>.<name>")
	ErrEventAttribute = errors.New("types: empty event attribute key")
)

// Event is a typed contract event. Type is namespaced by the emitting module,
// e.g. "gov.vote_cast" or "staking.reward_paid"; attribute values are the
// decimal or bech32 renderings produced by core/events.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Module returns the namespace of the event type ("gov" for "gov.vote_cast").
func (e *Event) Module() string {
	module, _, _ := strings.Cut(e.Type, ".")
	return module
}

// Validate checks that the type is namespaced and every attribute has a key.
func (e *Event) Validate() error {
	module, name, ok := strings.Cut(e.Type, ".")
	if !ok || module == "" || name == "" {
		return ErrEventType
	}
	for key := range e.Attributes {
		if strings.TrimSpace(key) == "" {
			return ErrEventAttribute
		}
	}
	return nil
}

// Clone returns a copy that shares no attribute map with e.
func (e *Event) Clone() *Event {
	out := &Event{Type: e.Type, Attributes: make(map[string]string, len(e.Attributes))}
	for key, value := range e.Attributes {
		out.Attributes[key] = value
	}
	return out
}
