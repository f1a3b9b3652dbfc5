package metrics

import (
	"strings"

	"ndxgov/core/events"
)

// EventEmitter derives protocol metrics from committed logs.
type EventEmitter struct{}

func (EventEmitter) Emit(evt events.Event) {
	log, ok := evt.(events.Log)
	if !ok || log.Event == nil {
		return
	}
	Chain().ObserveEvent(log.Event.Type)
	attrs := log.Event.Attributes
	contract := log.Contract.String()
	switch {
	case log.Event.Type == "gov.vote_cast":
		Protocol().ObserveVote("governor", attrs["support"] == "true")
	case log.Event.Type == "metagov.vote_cast":
		Protocol().ObserveVote("metagov", attrs["support"] == "true")
	case strings.HasPrefix(log.Event.Type, "gov.proposal_"):
		Protocol().ObserveProposal(strings.TrimPrefix(log.Event.Type, "gov.proposal_"))
	case log.Event.Type == "staking.reward_added":
		Protocol().ObserveRewardNotified(contract)
	case log.Event.Type == "staking.staked", log.Event.Type == "staking.withdrawn", log.Event.Type == "staking.reward_paid":
		Protocol().ObserveStakeAction(contract, strings.TrimPrefix(log.Event.Type, "staking."))
	}
}
