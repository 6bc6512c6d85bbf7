package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/betbot/ladderquote/internal/domain"
	"github.com/betbot/ladderquote/pkg/marketmath"
)

// Nearest 一侧最靠近参考价的挂单价格：bid 取最高价，ask 取最低价
func Nearest(side domain.Side, prices []decimal.Decimal) (decimal.Decimal, bool) {
	if len(prices) == 0 {
		return decimal.Zero, false
	}
	best := prices[0]
	for _, p := range prices[1:] {
		if side == domain.Bid && p.GreaterThan(best) {
			best = p
		}
		if side == domain.Ask && p.LessThan(best) {
			best = p
		}
	}
	return best, true
}

// DriftPercent 最近挂单价相对参考价的绝对百分比距离
func DriftPercent(side domain.Side, prices []decimal.Decimal, reference float64) (float64, bool) {
	nearest, ok := Nearest(side, prices)
	if !ok || reference <= 0 {
		return 0, false
	}
	return marketmath.DistancePercent(nearest.InexactFloat64(), reference), true
}

// Drifted 距离严格大于阈值才算漂移
func Drifted(percent, thresholdPercent float64) bool {
	return percent > thresholdPercent
}

// openPrices 仍挂着的跟踪订单价格；优先用快照价格
func openPrices(tracked map[string]domain.PlacedOrder, open []string, observed []domain.OrderSnapshot) []decimal.Decimal {
	index := make(map[string]decimal.Decimal, len(observed))
	for _, o := range observed {
		index[o.ID] = o.Price
	}
	prices := make([]decimal.Decimal, 0, len(open))
	for _, id := range open {
		if p, ok := index[id]; ok && p.IsPositive() {
			prices = append(prices, p)
			continue
		}
		prices = append(prices, tracked[id].Price)
	}
	return prices
}
