package ladder

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"
	"testing/quick"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/ladderquote/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testConstraints() domain.MarketConstraints {
	return domain.MarketConstraints{
		PriceTick:   d("0.01"),
		AmountTick:  d("0.001"),
		MinAmount:   d("0.001"),
		MinNotional: d("1"),
		MinPrice:    d("0.01"),
	}
}

func TestNormalize_RoundsHalfUpOnRatio(t *testing.T) {
	c := testConstraints()

	cand, err := Normalize(domain.Rung{Price: 102.505, NotionalAmount: 5}, domain.Ask, c)
	require.NoError(t, err)
	// 102.505 / 0.01 = 10250.5 -> 10251
	assert.True(t, cand.Price.Equal(d("102.51")), "price=%s", cand.Price)
	// 5 / 102.51 = 0.048775... -> 0.049
	assert.True(t, cand.Amount.Equal(d("0.049")), "amount=%s", cand.Amount)
	assert.True(t, cand.Notional.Equal(d("0.049").Mul(d("102.51"))))

	// 浮点表示误差不应导致向下漂移：102.49999999999999 -> 102.50
	cand, err = Normalize(domain.Rung{Price: 100 * 1.025, NotionalAmount: 5}, domain.Ask, c)
	require.NoError(t, err)
	assert.True(t, cand.Price.Equal(d("102.5")), "price=%s", cand.Price)
}

func TestNormalize_ClampsToMinPrice(t *testing.T) {
	c := testConstraints()
	c.MinPrice = d("0.105")

	cand, err := Normalize(domain.Rung{Price: 0.001, NotionalAmount: 5}, domain.Bid, c)
	require.NoError(t, err)
	// 钳到 minPrice 后向上对齐 tick
	assert.True(t, cand.Price.Equal(d("0.11")), "price=%s", cand.Price)
	assert.NoError(t, Conforms(cand, c))
}

func TestNormalize_RejectsBelowMinimum(t *testing.T) {
	c := testConstraints()
	c.MinAmount = d("1")

	_, err := Normalize(domain.Rung{Price: 100, NotionalAmount: 5}, domain.Ask, c)
	assert.True(t, errors.Is(err, domain.ErrBelowMinimum), "err=%v", err)

	c = testConstraints()
	c.MinNotional = d("10")
	_, err = Normalize(domain.Rung{Price: 100, NotionalAmount: 5}, domain.Ask, c)
	assert.True(t, errors.Is(err, domain.ErrBelowMinimum), "err=%v", err)
}

func TestNormalizeLadder_SkipsRejectedRungs(t *testing.T) {
	c := testConstraints()
	c.MinNotional = d("4")
	rungs := []domain.Rung{
		{Price: 100, NotionalAmount: 5},
		{Price: 101, NotionalAmount: 1}, // 金额不足
		{Price: 102, NotionalAmount: 5},
	}
	cands, rejected := NormalizeLadder(rungs, domain.Ask, c)
	require.Len(t, cands, 2)
	require.Len(t, rejected, 1)
	assert.Equal(t, 0, cands[0].Rung)
	assert.Equal(t, 2, cands[1].Rung)
	assert.Equal(t, 1, rejected[0].Rung)
}

type normInput struct {
	Rung domain.Rung
	C    domain.MarketConstraints
}

func (normInput) Generate(r *rand.Rand, _ int) reflect.Value {
	ticks := []string{"0.0001", "0.001", "0.01", "0.1", "1"}
	priceTick := d(ticks[r.Intn(len(ticks))])
	amountTick := d(ticks[r.Intn(len(ticks))])
	return reflect.ValueOf(normInput{
		Rung: domain.Rung{
			Price:          0.00001 + r.Float64()*50000,
			NotionalAmount: 0.01 + r.Float64()*500,
		},
		C: domain.MarketConstraints{
			PriceTick:   priceTick,
			AmountTick:  amountTick,
			MinAmount:   amountTick.Mul(decimal.NewFromInt(int64(r.Intn(5)))),
			MinNotional: decimal.NewFromFloat(r.Float64() * 10).Round(2),
			MinPrice:    priceTick.Mul(decimal.NewFromInt(int64(r.Intn(3)))),
		},
	})
}

// 未被拒绝的档位复核时一定满足 minAmount / minNotional / priceTick
func TestNormalize_RoundTripProperty(t *testing.T) {
	property := func(in normInput) bool {
		cand, err := Normalize(in.Rung, domain.Ask, in.C)
		if err != nil {
			return errors.Is(err, domain.ErrBelowMinimum)
		}
		return Conforms(cand, in.C) == nil
	}
	if err := quick.Check(property, &quick.Config{MaxCount: 1000}); err != nil {
		t.Fatal(err)
	}
}
