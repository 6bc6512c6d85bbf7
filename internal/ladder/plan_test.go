package ladder

import (
	"math"
	"math/rand"
	"reflect"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/ladderquote/internal/domain"
)

func TestPlan_MonoAskScenario(t *testing.T) {
	// ask, totalQuoteAmount=10, spreadPercent=10, numberOfOrders=2, ref=100
	rungs, err := Plan(100, domain.Ask, 10, 10, 2)
	require.NoError(t, err)
	require.Len(t, rungs, 2)

	assert.InDelta(t, 102.50, rungs[0].Price, 1e-9)
	assert.InDelta(t, 107.50, rungs[1].Price, 1e-9)
	assert.Equal(t, 5.0, rungs[0].NotionalAmount)
	assert.Equal(t, 5.0, rungs[1].NotionalAmount)
}

func TestPlan_BidSideDescends(t *testing.T) {
	rungs, err := Plan(100, domain.Bid, 10, 10, 2)
	require.NoError(t, err)
	assert.InDelta(t, 97.50, rungs[0].Price, 1e-9)
	assert.InDelta(t, 92.50, rungs[1].Price, 1e-9)
}

func TestPlan_RejectsInvalidInput(t *testing.T) {
	_, err := Plan(100, domain.Ask, 10, 10, 0)
	assert.Error(t, err)
	_, err = Plan(0, domain.Ask, 10, 10, 2)
	assert.Error(t, err)
	_, err = Plan(100, domain.Ask, 0, 10, 2)
	assert.Error(t, err)
	_, err = Plan(100, domain.Bid, 10, 100, 2)
	assert.Error(t, err)
	_, err = Plan(100, domain.Side(0), 10, 10, 2)
	assert.Error(t, err)
	_, err = Plan(math.NaN(), domain.Ask, 10, 10, 2)
	assert.Error(t, err)
}

type planInput struct {
	Reference float64
	Notional  float64
	Spread    float64
	Count     int
	Side      domain.Side
}

func (planInput) Generate(r *rand.Rand, _ int) reflect.Value {
	side := domain.Bid
	if r.Intn(2) == 1 {
		side = domain.Ask
	}
	return reflect.ValueOf(planInput{
		Reference: 0.0001 + r.Float64()*100000,
		Notional:  0.01 + r.Float64()*10000,
		Spread:    0.01 + r.Float64()*99,
		Count:     1 + r.Intn(60),
		Side:      side,
	})
}

// 档数正确、金额之和等于预算、价格远离参考价方向严格单调
func TestPlan_Properties(t *testing.T) {
	property := func(in planInput) bool {
		rungs, err := Plan(in.Reference, in.Side, in.Notional, in.Spread, in.Count)
		if err != nil || len(rungs) != in.Count {
			return false
		}
		sum := 0.0
		for i, r := range rungs {
			sum += r.NotionalAmount
			if i == 0 {
				continue
			}
			prev := rungs[i-1].Price
			if in.Side == domain.Ask && !(r.Price > prev) {
				return false
			}
			if in.Side == domain.Bid && !(r.Price < prev) {
				return false
			}
		}
		if math.Abs(sum-in.Notional) > 1e-9*math.Max(1, in.Notional) {
			return false
		}
		// 所有档位都在点差带内且不等于参考价
		for _, r := range rungs {
			d := math.Abs(r.Price-in.Reference) / in.Reference * 100
			if d <= 0 || d >= in.Spread {
				return false
			}
		}
		return true
	}
	if err := quick.Check(property, &quick.Config{MaxCount: 500}); err != nil {
		t.Fatal(err)
	}
}

func TestPlan_Idempotent(t *testing.T) {
	property := func(in planInput) bool {
		a, errA := Plan(in.Reference, in.Side, in.Notional, in.Spread, in.Count)
		b, errB := Plan(in.Reference, in.Side, in.Notional, in.Spread, in.Count)
		if errA != nil || errB != nil {
			return false
		}
		for i := range a {
			if math.Float64bits(a[i].Price) != math.Float64bits(b[i].Price) ||
				math.Float64bits(a[i].NotionalAmount) != math.Float64bits(b[i].NotionalAmount) {
				return false
			}
		}
		return true
	}
	if err := quick.Check(property, &quick.Config{MaxCount: 200}); err != nil {
		t.Fatal(err)
	}
}
