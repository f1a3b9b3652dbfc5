package indexer

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"ndxgov/core/events"
	"ndxgov/core/types"
	"ndxgov/crypto"
)

func newIndexer(t *testing.T) *Indexer {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	ix, err := Open(dsn, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })
	return ix
}

func logAt(contract string, height uint64, typ string, attrs map[string]string) events.Log {
	return events.Log{
		Contract:  crypto.ContractAddress(contract),
		Height:    height,
		Timestamp: 1_600_000_000 + height,
		Event:     &types.Event{Type: typ, Attributes: attrs},
	}
}

func TestRecordAndQuery(t *testing.T) {
	ix := newIndexer(t)
	ctx := context.Background()
	require.NoError(t, ix.Record(ctx, []events.Log{
		logAt("ndx", 1, "token.transfer", map[string]string{"amount": "5"}),
		logAt("governor", 2, "governance.proposal_created", map[string]string{"id": "1"}),
		logAt("ndx", 3, "token.transfer", map[string]string{"amount": "7"}),
		{Contract: crypto.ContractAddress("ndx"), Height: 3},
	}))

	all, err := ix.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, uint64(1), all[0].Block)
	require.Equal(t, "governance.proposal_created", all[1].Type)

	transfers, err := ix.Query(ctx, Filter{Type: "token.transfer", FromBlock: 2})
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	attrs, err := transfers[0].Attrs()
	require.NoError(t, err)
	require.Equal(t, "7", attrs["amount"])
	require.Equal(t, crypto.ContractAddress("ndx").String(), transfers[0].Address)

	require.Equal(t, "token", transfers[0].Module)

	governance, err := ix.Query(ctx, Filter{Module: "governance"})
	require.NoError(t, err)
	require.Len(t, governance, 1)
	require.Equal(t, "governance.proposal_created", governance[0].Type)

	byContract, err := ix.Query(ctx, Filter{Address: crypto.ContractAddress("governor")})
	require.NoError(t, err)
	require.Len(t, byContract, 1)

	limited, err := ix.Query(ctx, Filter{Limit: 2, ToBlock: 3})
	require.NoError(t, err)
	require.Len(t, limited, 2)
}

type blockSealed struct{}

func (blockSealed) EventType() string { return "block.sealed" }

func TestEmitAppendsAfterReopen(t *testing.T) {
	ix := newIndexer(t)
	ix.Emit(logAt("ndx", 4, "token.delegate_changed", nil))
	ix.Emit(blockSealed{})

	again, err := New(ix.db, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(1), again.seq)
	again.Emit(logAt("ndx", 5, "token.delegate_votes_changed", nil))

	got, err := again.Query(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, uint64(2), got[1].Seq)
}

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open("  ", nil)
	require.Error(t, err)
	require.True(t, isPostgres("postgres://ndx@localhost/ndx"))
	require.True(t, isPostgres("host=localhost user=ndx"))
	require.False(t, isPostgres("ndx-index.db"))
}
