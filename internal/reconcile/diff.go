package reconcile

import (
	"sort"

	"github.com/betbot/ladderquote/internal/domain"
)

// Delta 跟踪集合（期望状态）与交易所快照（观测状态）的差异
type Delta struct {
	// Filled 跟踪中但快照里已经不存在的订单（成交，或被外部撤掉）
	Filled []string
	// Open 跟踪中且仍在快照里的订单
	Open []string
	// PartiallyFilled 仍挂着但剩余数量小于下单数量
	PartiallyFilled []string
	// Missing 仍挂着的订单数比期望档数少多少
	Missing int
}

// HasFill 是否有订单消失
func (d Delta) HasFill() bool { return len(d.Filled) > 0 }

// Diff 比较一侧的跟踪订单和快照。快照中不属于跟踪集合的订单（手工挂单等）被忽略。
func Diff(tracked map[string]domain.PlacedOrder, expected int, observed []domain.OrderSnapshot) Delta {
	index := make(map[string]domain.OrderSnapshot, len(observed))
	for _, o := range observed {
		index[o.ID] = o
	}

	var d Delta
	for _, id := range sortedIDs(tracked) {
		snap, ok := index[id]
		if !ok {
			d.Filled = append(d.Filled, id)
			continue
		}
		d.Open = append(d.Open, id)
		if snap.Amount.LessThan(tracked[id].BaseAmount) {
			d.PartiallyFilled = append(d.PartiallyFilled, id)
		}
	}
	if n := expected - len(d.Open); n > 0 {
		d.Missing = n
	}
	return d
}

// sortedIDs 按档位、再按 id 排序，保证撤单顺序稳定
func sortedIDs(m map[string]domain.PlacedOrder) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := m[ids[i]], m[ids[j]]
		if a.Rung != b.Rung {
			return a.Rung < b.Rung
		}
		return ids[i] < ids[j]
	})
	return ids
}

// stillResting ids 中仍出现在快照里的部分
func stillResting(ids map[string]struct{}, observed []domain.OrderSnapshot) []string {
	var out []string
	for _, o := range observed {
		if _, ok := ids[o.ID]; ok {
			out = append(out, o.ID)
		}
	}
	sort.Strings(out)
	return out
}
