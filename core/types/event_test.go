package types

import (
	"errors"
	"testing"
)

func TestEventModule(t *testing.T) {
	cases := map[string]string{
		"gov.vote_cast":            "gov",
		"staking.reward_paid":      "staking",
		"vesting.treasury.claimed": "vesting",
		"unscoped":                 "unscoped",
	}
	for typ, want := range cases {
		if got := (&Event{Type: typ}).Module(); got != want {
			t.Fatalf("Module(%q) = %q, want %q", typ, got, want)
		}
	}
}

func TestEventValidate(t *testing.T) {
	if err := (&Event{Type: "gov.vote_cast", Attributes: map[string]string{"voter": "ndx1"}}).Validate(); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}
	for _, typ := range []string{"", "vote_cast", ".vote_cast", "gov."} {
		if err := (&Event{Type: typ}).Validate(); !errors.Is(err, ErrEventType) {
			t.Fatalf("type %q: expected ErrEventType, got %v", typ, err)
		}
	}
	evt := &Event{Type: "gov.vote_cast", Attributes: map[string]string{" ": "x"}}
	if err := evt.Validate(); !errors.Is(err, ErrEventAttribute) {
		t.Fatalf("expected ErrEventAttribute, got %v", err)
	}
}

func TestEventCloneDetachesAttributes(t *testing.T) {
	evt := &Event{Type: "erc20.transfer", Attributes: map[string]string{"amount": "5"}}
	clone := evt.Clone()
	evt.Attributes["amount"] = "6"
	if clone.Attributes["amount"] != "5" || clone.Type != evt.Type {
		t.Fatalf("clone shares state with original: %+v", clone)
	}
}
