// Package metrics 把每个 tick 的 Observation 转成 Prometheus 指标。
//
//   - ladder_ticks_total{action}              每个 tick 的动作
//   - ladder_tick_duration_seconds            tick 耗时
//   - ladder_side_state{side,state}           每侧当前状态（0/1）
//   - ladder_tracked_orders{side}             跟踪中的挂单数
//   - ladder_expected_orders{side}            期望挂单数
//   - ladder_drift_percent{side}              最近挂单相对参考价的漂移
//   - ladder_orders_placed_total{side}        下单成功数
//   - ladder_orders_cancelled_total           撤单确认数
//   - ladder_rungs_rejected_total             精度/余额等原因被丢弃的档位
//   - ladder_tick_errors_total                以错误结束的 tick
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/betbot/ladderquote/internal/reconcile"
)

var states = []reconcile.State{
	reconcile.StateEmpty,
	reconcile.StateQuoted,
	reconcile.StateDegraded,
	reconcile.StateDrifted,
	reconcile.StateSettling,
}

// Metrics 实现 reconcile.Observer；使用独立 registry，不污染全局 DefaultRegisterer
type Metrics struct {
	registry *prometheus.Registry

	ticks        *prometheus.CounterVec
	tickDuration prometheus.Histogram
	sideState    *prometheus.GaugeVec
	tracked      *prometheus.GaugeVec
	expected     *prometheus.GaugeVec
	drift        *prometheus.GaugeVec
	placed       *prometheus.CounterVec
	cancelled    prometheus.Counter
	rejected     prometheus.Counter
	tickErrors   prometheus.Counter
}

// New 创建并注册全部指标。withRuntime 为 true 时额外注册 go/process collector。
func New(withRuntime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ladder_ticks_total",
			Help: "Reconciliation ticks by action taken",
		}, []string{"action"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ladder_tick_duration_seconds",
			Help:    "Wall time of a reconciliation tick",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		sideState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ladder_side_state",
			Help: "Current quoting state per side (1 for the active state)",
		}, []string{"side", "state"}),
		tracked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ladder_tracked_orders",
			Help: "Orders currently tracked per side",
		}, []string{"side"}),
		expected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ladder_expected_orders",
			Help: "Orders the last ladder expected to rest per side",
		}, []string{"side"}),
		drift: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ladder_drift_percent",
			Help: "Distance between the nearest order and the reference price",
		}, []string{"side"}),
		placed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ladder_orders_placed_total",
			Help: "Orders accepted by the exchange",
		}, []string{"side"}),
		cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ladder_orders_cancelled_total",
			Help: "Orders confirmed cancelled or already gone",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ladder_rungs_rejected_total",
			Help: "Ladder rungs dropped before or during placement",
		}),
		tickErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ladder_tick_errors_total",
			Help: "Ticks that ended with an error",
		}),
	}
	m.registry.MustRegister(
		m.ticks, m.tickDuration, m.sideState, m.tracked, m.expected,
		m.drift, m.placed, m.cancelled, m.rejected, m.tickErrors,
	)
	if withRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Registry 供测试或额外 collector 使用
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Observe 实现 reconcile.Observer
func (m *Metrics) Observe(o reconcile.Observation) {
	m.ticks.WithLabelValues(string(o.Action)).Inc()
	if o.Action == reconcile.ActionSkipped {
		return
	}
	m.tickDuration.Observe(o.Duration.Seconds())
	if o.Err != nil {
		m.tickErrors.Inc()
	}
	m.cancelled.Add(float64(o.Cancelled))
	m.rejected.Add(float64(o.Rejected))
	for _, p := range o.Placed {
		m.placed.WithLabelValues(p.Side.String()).Inc()
	}

	for side, so := range o.Sides {
		label := side.String()
		for _, st := range states {
			v := 0.0
			if st == so.State {
				v = 1
			}
			m.sideState.WithLabelValues(label, string(st)).Set(v)
		}
		m.tracked.WithLabelValues(label).Set(float64(so.Tracked))
		m.expected.WithLabelValues(label).Set(float64(so.Expected))
		m.drift.WithLabelValues(label).Set(so.DriftPercent)
	}
}

var _ reconcile.Observer = (*Metrics)(nil)
