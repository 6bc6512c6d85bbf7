// Package ladder 负责把参考价 + 预算 转成一侧的挂单阶梯（ladder），
// 并按交易所精度约束对齐每一档。
package ladder

import (
	"fmt"
	"math"

	"github.com/betbot/ladderquote/internal/domain"
)

// Plan 计算一侧的价格/金额阶梯。
//
// totalNotional 平均拆成 orderCount 档；第 i 档的偏移为
//
//	offset_i = (spreadPercent/100 / orderCount) * (i + 0.5)
//
// 即在点差带内均匀分布、取半步中点（不会正好落在参考价或点差边缘）。
// bid: price_i = ref * (1 - offset_i)；ask: price_i = ref * (1 + offset_i)。
// 下标 0 最靠近参考价。纯函数：相同输入必然得到逐位相同的输出。
func Plan(reference float64, side domain.Side, totalNotional, spreadPercent float64, orderCount int) ([]domain.Rung, error) {
	if !side.Valid() {
		return nil, fmt.Errorf("无效方向: %v", side)
	}
	if orderCount < 1 {
		return nil, fmt.Errorf("orderCount 必须 >= 1，当前 %d", orderCount)
	}
	if !(reference > 0) || math.IsInf(reference, 0) {
		return nil, fmt.Errorf("参考价必须 > 0，当前 %v", reference)
	}
	if !(totalNotional > 0) || math.IsInf(totalNotional, 0) {
		return nil, fmt.Errorf("totalNotional 必须 > 0，当前 %v", totalNotional)
	}
	if !(spreadPercent > 0) || spreadPercent >= 100 {
		return nil, fmt.Errorf("spreadPercent 必须在 (0, 100) 之间，当前 %v", spreadPercent)
	}

	step := spreadPercent / 100 / float64(orderCount)
	perRung := totalNotional / float64(orderCount)

	rungs := make([]domain.Rung, orderCount)
	for i := 0; i < orderCount; i++ {
		offset := step * (float64(i) + 0.5)
		price := reference * (1 + offset)
		if side == domain.Bid {
			price = reference * (1 - offset)
		}
		rungs[i] = domain.Rung{Price: price, NotionalAmount: perRung}
	}
	return rungs, nil
}
