package metagov

import (
	"math/big"
	"strconv"

	"ndxgov/core/events"
	"ndxgov/core/types"
	"ndxgov/crypto"
)

const (
	TypeVoteCast              = "metagov.vote_cast"
	TypeExternalVoteSubmitted = "metagov.external_vote_submitted"
)

func voteCast(voter crypto.Address, id uint64, support bool, votes *big.Int) *types.Event {
	return &types.Event{Type: TypeVoteCast, Attributes: map[string]string{
		"voter":      events.FormatAddress(voter),
		"proposalId": strconv.FormatUint(id, 10),
		"support":    strconv.FormatBool(support),
		"votes":      events.FormatAmount(votes),
	}}
}

func externalVoteSubmitted(id uint64, support bool) *types.Event {
	return &types.Event{Type: TypeExternalVoteSubmitted, Attributes: map[string]string{
		"proposalId": strconv.FormatUint(id, 10),
		"support":    strconv.FormatBool(support),
	}}
}
