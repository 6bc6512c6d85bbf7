package reconcile

import (
	"time"

	"github.com/betbot/ladderquote/internal/domain"
)

// Action 一次 tick 实际做了什么
type Action string

const (
	ActionNone      Action = "none"
	ActionHeartbeat Action = "heartbeat"
	ActionBootstrap Action = "bootstrap"
	ActionFill      Action = "fill_refresh"
	ActionDegraded  Action = "degraded_refresh"
	ActionDrift     Action = "drift_refresh"
	ActionDeferred  Action = "deferred"
	ActionSkipped   Action = "skipped"
	ActionFailed    Action = "failed"
)

// SideObservation 一侧在 tick 结束时的状态
type SideObservation struct {
	State        State
	Tracked      int
	Expected     int
	Settling     int
	DriftPercent float64
}

// Observation 每个 tick 回调一次
type Observation struct {
	Tick      uint64
	At        time.Time
	Duration  time.Duration
	State     State
	Sides     map[domain.Side]SideObservation
	Action    Action
	Placed    []domain.PlacedOrder
	Cancelled int
	Rejected  int
	Err       error
}

// Observer 观测回调；在 tick 所在 goroutine 同步调用，实现方不应阻塞。
// 被跳过的 tick 会与正在执行的 tick 并发回调，实现需并发安全。
type Observer interface {
	Observe(Observation)
}

// ObserverFunc 函数适配
type ObserverFunc func(Observation)

func (f ObserverFunc) Observe(o Observation) { f(o) }

// MultiObserver 依次分发给多个观察者
type MultiObserver []Observer

func (m MultiObserver) Observe(o Observation) {
	for _, obs := range m {
		if obs != nil {
			obs.Observe(o)
		}
	}
}
