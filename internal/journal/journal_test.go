package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/ladderquote/internal/domain"
	"github.com/betbot/ladderquote/internal/reconcile"
)

func TestJournalRecordsTicksAndPlacements(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	j.Observe(reconcile.Observation{
		Tick:     1,
		At:       at,
		Duration: 15 * time.Millisecond,
		State:    reconcile.StateQuoted,
		Action:   reconcile.ActionBootstrap,
		Sides: map[domain.Side]reconcile.SideObservation{
			domain.Ask: {State: reconcile.StateQuoted, Tracked: 2, Expected: 2},
		},
		Placed: []domain.PlacedOrder{
			{ID: "a", Side: domain.Ask, Rung: 0, Price: decimal.NewFromInt(102), BaseAmount: decimal.RequireFromString("0.05"), PlacedAt: at},
			{ID: "b", Side: domain.Ask, Rung: 1, Price: decimal.NewFromInt(107), BaseAmount: decimal.RequireFromString("0.05"), PlacedAt: at},
		},
	})
	j.Observe(reconcile.Observation{Tick: 2, At: at, Action: reconcile.ActionNone})
	j.Observe(reconcile.Observation{Tick: 3, At: at, Action: reconcile.ActionSkipped})
	j.Observe(reconcile.Observation{Tick: 4, At: at, Action: reconcile.ActionFailed, Err: errors.New("snapshot failed")})
	require.NoError(t, j.Close())
	// 重复关闭无副作用，关闭后的 Observe 被忽略
	require.NoError(t, j.Close())
	j.Observe(reconcile.Observation{Tick: 5, Action: reconcile.ActionBootstrap})

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	recs, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, uint64(4), recs[0].Tick)
	assert.Equal(t, "snapshot failed", recs[0].Error)
	assert.Equal(t, "bootstrap", recs[1].Action)
	assert.Equal(t, 2, recs[1].Placed)
	assert.True(t, at.Equal(recs[1].At), "at=%s", recs[1].At)
	assert.Contains(t, recs[1].Sides, `"ask"`)

	n, err := j.PlacementCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = j.PlacementCount(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
