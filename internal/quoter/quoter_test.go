package quoter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/ladderquote/internal/domain"
	"github.com/betbot/ladderquote/internal/exchange/paper"
	"github.com/betbot/ladderquote/internal/ladder"
)

var btcusdt = domain.Symbol{Base: "BTC", Quote: "USDT"}

func newTestQuoter(ex Exchange) (*Quoter, *[]time.Duration) {
	var slept []time.Duration
	q := New(ex, Config{InterOrderDelay: 100 * time.Millisecond, RateLimitBackoff: 2 * time.Second})
	q.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return q, &slept
}

func candidates(n int) []ladder.Candidate {
	out := make([]ladder.Candidate, n)
	for i := range out {
		price := decimal.NewFromInt(int64(101 + i))
		out[i] = ladder.Candidate{
			Rung:     i,
			Side:     domain.Ask,
			Price:    price,
			Amount:   decimal.RequireFromString("0.1"),
			Notional: price.Mul(decimal.RequireFromString("0.1")),
		}
	}
	return out
}

func TestQuotePlacesEveryCandidate(t *testing.T) {
	ex := paper.New()
	q, slept := newTestQuoter(ex)

	res, err := q.Quote(context.Background(), btcusdt, domain.Ask, candidates(3))
	require.NoError(t, err)
	require.Len(t, res.Placed, 3)
	assert.Empty(t, res.Failed)
	assert.Equal(t, []string{"paper-1", "paper-2", "paper-3"}, res.IDs())
	for i, p := range res.Placed {
		assert.Equal(t, i, p.Rung)
		assert.Equal(t, domain.Ask, p.Side)
		assert.NotEmpty(t, p.ClientOrderID)
	}
	// 第一单前不等待
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 100 * time.Millisecond}, *slept)
}

func TestQuoteSkipsFailedRungsAndBacksOffOnRateLimit(t *testing.T) {
	ex := paper.New()
	ex.InjectError("PlaceLimitOrder", nil, domain.ErrRateLimited, domain.ErrInsufficientBalance, nil)
	q, slept := newTestQuoter(ex)

	res, err := q.Quote(context.Background(), btcusdt, domain.Ask, candidates(4))
	require.NoError(t, err)
	require.Len(t, res.Placed, 2)
	assert.Equal(t, 0, res.Placed[0].Rung)
	assert.Equal(t, 3, res.Placed[1].Rung)
	require.Len(t, res.Failed, 2)
	assert.True(t, domain.IsRateLimited(res.Failed[0].Err))
	assert.True(t, errors.Is(res.Failed[1].Err, domain.ErrInsufficientBalance))
	assert.Contains(t, *slept, 2*time.Second)
	assert.Len(t, ex.Open(), 2)
}

func TestQuoteAllFailedIsLadderFailure(t *testing.T) {
	ex := paper.New()
	ex.InjectError("PlaceLimitOrder", domain.ErrPlacement, domain.ErrPlacement)
	q, _ := newTestQuoter(ex)

	res, err := q.Quote(context.Background(), btcusdt, domain.Ask, candidates(2))
	assert.True(t, errors.Is(err, domain.ErrLadderFailed), "err=%v", err)
	assert.Empty(t, res.Placed)

	_, err = q.Quote(context.Background(), btcusdt, domain.Ask, nil)
	assert.True(t, errors.Is(err, domain.ErrLadderFailed))
}

func TestQuoteReturnsPlacedOnCancel(t *testing.T) {
	ex := paper.New()
	q, _ := newTestQuoter(ex)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	q.sleep = func(ctx context.Context, d time.Duration) error {
		calls++
		cancel()
		return ctx.Err()
	}

	res, err := q.Quote(ctx, btcusdt, domain.Ask, candidates(3))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, res.Placed, 1)
	assert.Equal(t, 1, calls)
}

func TestCancelAllCountsAlreadyGoneAsSuccess(t *testing.T) {
	ctx := context.Background()
	ex := paper.New()
	q, _ := newTestQuoter(ex)
	res, err := q.Quote(ctx, btcusdt, domain.Ask, candidates(5))
	require.NoError(t, err)

	// 3 单在撤单前已经成交
	for _, id := range res.IDs()[:3] {
		require.True(t, ex.Fill(btcusdt, id))
	}

	report, err := q.CancelAll(ctx, btcusdt, res.IDs(), CancelOptions{})
	require.NoError(t, err)
	assert.Equal(t, 5, report.Requested)
	assert.Equal(t, 3, report.AlreadyGone)
	assert.Equal(t, 2, report.Cancelled)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 5, report.Resolved())
	assert.False(t, report.Batch)
	assert.Empty(t, ex.Open())
}

func TestCancelAllPrefersBatch(t *testing.T) {
	ctx := context.Background()
	ex := paper.New()
	q, _ := newTestQuoter(ex)
	res, err := q.Quote(ctx, btcusdt, domain.Ask, candidates(3))
	require.NoError(t, err)

	report, err := q.CancelAll(ctx, btcusdt, res.IDs(), CancelOptions{SymbolWide: true})
	require.NoError(t, err)
	assert.True(t, report.Batch)
	assert.Equal(t, 3, report.Cancelled)
	assert.Equal(t, 1, ex.CallCount("CancelAllOrders"))
	assert.Equal(t, 0, ex.CallCount("CancelOrder"))
}

func TestCancelAllFallsBackWhenBatchFails(t *testing.T) {
	ctx := context.Background()
	ex := paper.New()
	q, _ := newTestQuoter(ex)
	res, err := q.Quote(ctx, btcusdt, domain.Ask, candidates(2))
	require.NoError(t, err)
	ex.InjectError("CancelAllOrders", errors.New("503"))

	report, err := q.CancelAll(ctx, btcusdt, res.IDs(), CancelOptions{SymbolWide: true})
	require.NoError(t, err)
	assert.False(t, report.Batch)
	assert.Equal(t, 2, report.Cancelled)
	assert.Equal(t, 2, ex.CallCount("CancelOrder"))
}

func TestCancelAllReportsFailures(t *testing.T) {
	ctx := context.Background()
	ex := paper.New()
	q, _ := newTestQuoter(ex)
	res, err := q.Quote(ctx, btcusdt, domain.Ask, candidates(2))
	require.NoError(t, err)
	ex.InjectError("CancelOrder", errors.New("timeout"))

	report, err := q.CancelAll(ctx, btcusdt, res.IDs(), CancelOptions{})
	assert.True(t, errors.Is(err, domain.ErrCancel), "err=%v", err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []string{res.IDs()[0]}, report.FailedIDs)
	assert.Equal(t, 1, report.Cancelled)
}
