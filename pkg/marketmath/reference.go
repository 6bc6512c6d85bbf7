package marketmath

import (
	"fmt"

	"github.com/betbot/ladderquote/internal/domain"
)

// ResolveReference 按策略从盘口快照中得到单一参考价。
//
// 规则：
//   - first_ask: 卖一；卖盘为空时回退到最新成交价
//   - first_bid: 买一；买盘为空时回退到最新成交价
//   - mid:       买一卖一均值；任一侧为空时用最新成交价，再没有就用仅存的一侧
//   - best:      bid 侧计算用 first_bid，ask 侧计算用 first_ask
//
// 所有来源都不可用时返回 domain.ErrNoLiquidity（调用方应视为非致命，下一 tick 重试）。
func ResolveReference(policy domain.PricePolicy, q domain.ReferenceQuote, side domain.Side) (float64, error) {
	switch policy {
	case domain.PolicyFirstAsk:
		return firstOf(q.Ask, q.Last)
	case domain.PolicyFirstBid:
		return firstOf(q.Bid, q.Last)
	case domain.PolicyMid:
		if q.Bid > 0 && q.Ask > 0 {
			return (q.Bid + q.Ask) / 2, nil
		}
		return firstOf(q.Last, q.Bid, q.Ask)
	case domain.PolicyBest:
		if side == domain.Ask {
			return firstOf(q.Ask, q.Last)
		}
		return firstOf(q.Bid, q.Last)
	default:
		return 0, fmt.Errorf("不支持的 price policy: %q", policy)
	}
}

func firstOf(candidates ...float64) (float64, error) {
	for _, v := range candidates {
		if v > 0 {
			return v, nil
		}
	}
	return 0, domain.ErrNoLiquidity
}

// DistancePercent 返回 price 相对 reference 的绝对百分比距离。
func DistancePercent(price, reference float64) float64 {
	if reference <= 0 {
		return 0
	}
	d := (price - reference) / reference * 100
	if d < 0 {
		return -d
	}
	return d
}
