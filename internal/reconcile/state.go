package reconcile

import (
	"sort"

	"github.com/betbot/ladderquote/internal/domain"
)

// State 一侧报价状态
type State string

const (
	StateEmpty    State = "EMPTY"
	StateQuoted   State = "QUOTED"
	StateDegraded State = "DEGRADED"
	StateDrifted  State = "DRIFTED"
	// StateSettling 已发出撤单、尚未确认全部离场
	StateSettling State = "SETTLING"
)

// severity 合并多侧状态时取最严重的
func (s State) severity() int {
	switch s {
	case StateSettling:
		return 4
	case StateEmpty:
		return 3
	case StateDegraded:
		return 2
	case StateDrifted:
		return 1
	default:
		return 0
	}
}

// sideBook 一侧的跟踪状态，只由持有 guard 的 tick 修改
type sideBook struct {
	side     domain.Side
	tracked  map[string]domain.PlacedOrder
	expected int
	// settling 已撤、待确认离场的订单
	settling map[string]struct{}

	driftPercent float64
	drifted      bool
}

func newSideBook(side domain.Side) *sideBook {
	return &sideBook{
		side:     side,
		tracked:  make(map[string]domain.PlacedOrder),
		settling: make(map[string]struct{}),
	}
}

func (b *sideBook) state() State {
	switch {
	case len(b.settling) > 0:
		return StateSettling
	case len(b.tracked) == 0:
		return StateEmpty
	case len(b.tracked) < b.expected:
		return StateDegraded
	case b.drifted:
		return StateDrifted
	default:
		return StateQuoted
	}
}

// track 用最近一次成功下单的结果整体替换跟踪集合
func (b *sideBook) track(placed []domain.PlacedOrder, expected int) {
	b.tracked = make(map[string]domain.PlacedOrder, len(placed))
	for _, p := range placed {
		b.tracked[p.ID] = p
	}
	b.expected = expected
	b.drifted = false
	b.driftPercent = 0
}

// release 做出刷新决定时清空跟踪集合；resting 是仍挂着、需要撤掉的 id，转入 settling
func (b *sideBook) release(resting []string) {
	for _, id := range resting {
		b.settling[id] = struct{}{}
	}
	b.tracked = make(map[string]domain.PlacedOrder)
	b.expected = 0
	b.drifted = false
}

func (b *sideBook) trackedIDs() []string { return sortedIDs(b.tracked) }

func (b *sideBook) settlingIDs() []string {
	ids := make([]string, 0, len(b.settling))
	for id := range b.settling {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
