// Package reconcile 报价对账循环：每个 tick 拉取 open orders 快照，
// 与跟踪集合比对后决定 不动 / 单侧刷新 / 双侧刷新。
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/betbot/ladderquote/internal/domain"
	"github.com/betbot/ladderquote/internal/ladder"
	"github.com/betbot/ladderquote/internal/ports"
	"github.com/betbot/ladderquote/internal/quoter"
	"github.com/betbot/ladderquote/pkg/marketmath"
	"github.com/betbot/ladderquote/pkg/ratelimit"
)

var log = logrus.WithField("component", "reconcile")

// Option 构造选项
type Option func(*Engine)

// WithObserver 每个 tick 结束时回调
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// Engine 对账循环。跟踪状态只由持有 guard 的 tick 修改。
type Engine struct {
	cfg      domain.QuoteConfig
	ex       ports.Exchange
	quoter   *quoter.Quoter
	observer Observer

	guard       *ratelimit.InFlightLimiter
	sides       []domain.Side
	books       map[domain.Side]*sideBook
	constraints domain.MarketConstraints
	started     bool

	tick    uint64
	idle    int
	skipped atomic.Uint64

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	mu   sync.RWMutex
	last *Observation
}

// New 校验配置并创建 engine
func New(cfg domain.QuoteConfig, ex ports.Exchange, opts ...Option) (*Engine, error) {
	if ex == nil {
		return nil, fmt.Errorf("exchange 不能为空")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:   cfg,
		ex:    ex,
		guard: ratelimit.NewInFlightLimiter(1),
		sides: cfg.Sides(),
		books: make(map[domain.Side]*sideBook, 2),
		sleep: sleepCtx,
		now:   time.Now,
	}
	// quoter 与 engine 共用同一个等待函数
	e.quoter = quoter.New(ex, quoter.Config{
		InterOrderDelay:  cfg.InterOrderDelay,
		RateLimitBackoff: cfg.RateLimitBackoff,
		Sleep:            func(ctx context.Context, d time.Duration) error { return e.sleep(ctx, d) },
	})
	for _, s := range e.sides {
		e.books[s] = newSideBook(s)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config 生效配置（已填充默认值）
func (e *Engine) Config() domain.QuoteConfig { return e.cfg }

// LastObservation 最近一次完成的 tick
func (e *Engine) LastObservation() (Observation, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.last == nil {
		return Observation{}, false
	}
	return *e.last, true
}

// SkippedTicks 因上一 tick 未结束而被跳过的次数
func (e *Engine) SkippedTicks() uint64 { return e.skipped.Load() }

// Tick 执行一次对账。上一 tick 未结束时直接跳过（不排队）。
func (e *Engine) Tick(ctx context.Context) Observation {
	if !e.guard.TryAcquire() {
		e.skipped.Add(1)
		log.Debugf("上一 tick 仍在执行，跳过")
		obs := Observation{At: e.now(), Action: ActionSkipped}
		e.notify(obs)
		return obs
	}
	defer e.guard.Release()

	e.tick++
	start := e.now()
	obs := Observation{Tick: e.tick, At: start, Action: ActionNone}

	var err error
	if !e.started {
		err = fmt.Errorf("engine 未启动")
	} else {
		err = e.reconcile(ctx, &obs)
	}
	if err != nil {
		obs.Err = err
		if obs.Action == ActionNone {
			obs.Action = ActionFailed
		}
		log.Errorf("❌ tick #%d 失败: %v", e.tick, err)
	}

	e.collect(&obs)
	if obs.Action == ActionNone {
		e.idle++
		if e.idle%e.cfg.HeartbeatEvery == 0 {
			obs.Action = ActionHeartbeat
			log.Infof("💓 tick #%d state=%s %s", e.tick, obs.State, formatSides(obs.Sides))
		}
	} else {
		e.idle = 0
	}
	obs.Duration = e.now().Sub(start)

	e.mu.Lock()
	last := obs
	e.last = &last
	e.mu.Unlock()

	e.notify(obs)
	return obs
}

func (e *Engine) reconcile(ctx context.Context, obs *Observation) error {
	snapshot, err := e.ex.GetOpenOrders(ctx, e.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("获取挂单快照失败: %w", err)
	}

	// 上一轮撤掉的订单仍未离场：只补撤，不下单
	if e.deferOnResting(ctx, snapshot, obs) {
		return nil
	}

	deltas := make(map[domain.Side]Delta, len(e.sides))
	fill := false
	for _, side := range e.sides {
		b := e.books[side]
		d := Diff(b.tracked, b.expected, snapshot)
		deltas[side] = d
		if d.HasFill() {
			fill = true
			log.Infof("🎯 检测到成交: side=%s filled=%d open=%d", side, len(d.Filled), len(d.Open))
		} else if e.cfg.RefreshOnPartialFill && len(d.PartiallyFilled) > 0 {
			fill = true
			log.Infof("🎯 检测到部分成交: side=%s partial=%d", side, len(d.PartiallyFilled))
		}
	}

	plan := make(map[domain.Side]Action, len(e.sides))
	for _, side := range e.sides {
		b := e.books[side]
		switch {
		case len(b.tracked) == 0:
			plan[side] = ActionBootstrap
		case fill:
			// both 模式任一侧成交都刷新两侧
			plan[side] = ActionFill
		case deltas[side].Missing > 0:
			log.Infof("⚠️ %s 侧挂单不足: open=%d expected=%d", side, len(deltas[side].Open), b.expected)
			plan[side] = ActionDegraded
		}
	}

	if err := e.checkDrift(ctx, snapshot, deltas, plan); err != nil {
		return err
	}
	if len(plan) == 0 {
		return nil
	}
	return e.refresh(ctx, plan, deltas, obs)
}

// deferOnResting 复核 settling 订单：已离场的移除；仍挂着的补撤并推迟到下一 tick
func (e *Engine) deferOnResting(ctx context.Context, snapshot []domain.OrderSnapshot, obs *Observation) bool {
	var resting []string
	for _, side := range e.sides {
		b := e.books[side]
		if len(b.settling) == 0 {
			continue
		}
		still := stillResting(b.settling, snapshot)
		if len(still) == 0 {
			b.settling = make(map[string]struct{})
			continue
		}
		resting = append(resting, still...)
	}
	if len(resting) == 0 {
		return false
	}

	obs.Action = ActionDeferred
	log.Infof("%v: count=%d，补撤后下一 tick 再复核", domain.ErrReconciliationRace, len(resting))
	report, err := e.quoter.CancelAll(ctx, e.cfg.Symbol, resting, quoter.CancelOptions{})
	obs.Cancelled += report.Resolved()
	if err != nil {
		log.Warnf("补撤失败: %v", err)
	}
	return true
}

// checkDrift 对没有其它动作的一侧计算漂移；需要时取一次新鲜参考价
func (e *Engine) checkDrift(ctx context.Context, snapshot []domain.OrderSnapshot, deltas map[domain.Side]Delta, plan map[domain.Side]Action) error {
	var candidates []domain.Side
	for _, side := range e.sides {
		if _, planned := plan[side]; !planned && len(e.books[side].tracked) > 0 {
			candidates = append(candidates, side)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	q, err := e.ex.GetReferenceQuote(ctx, e.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("读取行情失败: %w", err)
	}
	for _, side := range candidates {
		reference, err := marketmath.ResolveReference(e.cfg.PricePolicy, q, side)
		if err != nil {
			return fmt.Errorf("%s 侧: %w", side, err)
		}
		b := e.books[side]
		pct, ok := DriftPercent(side, openPrices(b.tracked, deltas[side].Open, snapshot), reference)
		b.driftPercent = pct
		b.drifted = ok && Drifted(pct, e.cfg.DriftThresholdPercent)
		if b.drifted {
			log.Infof("📐 %s 侧价格漂移 %.4f%% > %.4f%%（参考价 %.8g）", side, pct, e.cfg.DriftThresholdPercent, reference)
			plan[side] = ActionDrift
		}
	}
	return nil
}

// refresh 撤掉 plan 中各侧的跟踪订单 -> 等待落定 -> 二次快照确认 -> 重新挂整条 ladder
func (e *Engine) refresh(ctx context.Context, plan map[domain.Side]Action, deltas map[domain.Side]Delta, obs *Observation) error {
	obs.Action = primaryAction(plan)

	// 已消失的订单不再撤
	var ids []string
	for _, side := range e.sides {
		if _, ok := plan[side]; ok {
			open := deltas[side].Open
			e.books[side].release(open)
			ids = append(ids, open...)
		}
	}

	if len(ids) > 0 {
		opts := quoter.CancelOptions{SymbolWide: e.symbolWide(len(plan) == len(e.sides))}
		report, err := e.quoter.CancelAll(ctx, e.cfg.Symbol, ids, opts)
		obs.Cancelled += report.Resolved()
		if err != nil {
			return fmt.Errorf("撤单未完成，下一 tick 复核: %w", err)
		}
		if err := e.sleep(ctx, e.cfg.CancelSettleDelay); err != nil {
			return err
		}

		snapshot, err := e.ex.GetOpenOrders(ctx, e.cfg.Symbol)
		if err != nil {
			return fmt.Errorf("撤单后复核快照失败: %w", err)
		}
		var resting int
		for side := range plan {
			resting += len(stillResting(e.books[side].settling, snapshot))
		}
		if resting > 0 {
			obs.Action = ActionDeferred
			log.Infof("%v: count=%d，推迟到下一 tick", domain.ErrReconciliationRace, resting)
			return nil
		}
		for side := range plan {
			e.books[side].settling = make(map[string]struct{})
		}
	}

	var errs []error
	for _, side := range e.sides {
		if _, ok := plan[side]; !ok {
			continue
		}
		if err := e.placeSide(ctx, side, obs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// placeSide 取参考价与余额（并发）-> 规划 -> 对齐 -> 下单，并用结果替换跟踪集合
func (e *Engine) placeSide(ctx context.Context, side domain.Side, obs *Observation) error {
	symbol := e.cfg.Symbol
	currency := symbol.SpendCurrency(side)

	var (
		q       domain.ReferenceQuote
		balance decimal.Decimal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		q, err = e.ex.GetReferenceQuote(gctx, symbol)
		return err
	})
	g.Go(func() error {
		var err error
		balance, err = e.ex.GetAvailableBalance(gctx, currency)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%s 侧读取行情/余额失败: %w", side, err)
	}

	reference, err := marketmath.ResolveReference(e.cfg.PricePolicy, q, side)
	if err != nil {
		return fmt.Errorf("%s 侧: %w", side, err)
	}

	budget := e.cfg.Budget(side)
	capacity := balance
	if side == domain.Ask {
		capacity = balance.Mul(decimal.NewFromFloat(reference))
	}
	if c := capacity.InexactFloat64(); c < budget {
		log.Warnf("%s 侧预算 %.8g 超过可用 %s（折合 %.8g），按可用下单", side, budget, currency, c)
		budget = c
	}
	if budget <= 0 {
		return fmt.Errorf("%w: %s 侧可用 %s 为 0", domain.ErrInsufficientBalance, side, currency)
	}

	rungs, err := ladder.Plan(reference, side, budget, e.cfg.SpreadPercent, e.cfg.OrdersPerSide)
	if err != nil {
		return fmt.Errorf("%s 侧规划失败: %w", side, err)
	}
	cands, rejected := ladder.NormalizeLadder(rungs, side, e.constraints)
	obs.Rejected += len(rejected)
	for _, r := range rejected {
		log.Warnf("%s 侧第 %d 档不满足交易所最小约束，跳过: %v", side, r.Rung, r.Err)
	}

	res, err := e.quoter.Quote(ctx, symbol, side, cands)
	e.books[side].track(res.Placed, len(cands)-persistentFailures(res.Failed))
	obs.Placed = append(obs.Placed, res.Placed...)
	if err != nil {
		return fmt.Errorf("%s 侧下单: %w", side, err)
	}
	return nil
}

// symbolWide 整 symbol 撤单会带走非报价侧的挂单，只在 both 模式且两侧都要撤时使用
func (e *Engine) symbolWide(allSides bool) bool {
	return e.cfg.SymbolWideCancel && e.cfg.Mode == domain.ModeBoth && allSides
}

// persistentFailures 重试也不会成功的档位（不计入期望档数，避免每个 tick 反复重建）
func persistentFailures(failed []quoter.Failure) int {
	n := 0
	for _, f := range failed {
		if errors.Is(f.Err, domain.ErrBelowMinimum) || errors.Is(f.Err, domain.ErrInsufficientBalance) {
			n++
		}
	}
	return n
}

// primaryAction 按优先级选出本 tick 的主要动作
func primaryAction(plan map[domain.Side]Action) Action {
	for _, a := range []Action{ActionBootstrap, ActionFill, ActionDegraded, ActionDrift} {
		for _, got := range plan {
			if got == a {
				return a
			}
		}
	}
	return ActionNone
}

func (e *Engine) collect(obs *Observation) {
	obs.Sides = make(map[domain.Side]SideObservation, len(e.sides))
	combined := StateQuoted
	for _, side := range e.sides {
		b := e.books[side]
		st := b.state()
		obs.Sides[side] = SideObservation{
			State:        st,
			Tracked:      len(b.tracked),
			Expected:     b.expected,
			Settling:     len(b.settling),
			DriftPercent: b.driftPercent,
		}
		if st.severity() > combined.severity() {
			combined = st
		}
	}
	obs.State = combined
}

func (e *Engine) notify(obs Observation) {
	if e.observer != nil {
		e.observer.Observe(obs)
	}
}

func formatSides(sides map[domain.Side]SideObservation) string {
	out := ""
	for _, side := range []domain.Side{domain.Bid, domain.Ask} {
		s, ok := sides[side]
		if !ok {
			continue
		}
		out += fmt.Sprintf("%s[%s %d/%d drift=%.3f%%] ", side, s.State, s.Tracked, s.Expected, s.DriftPercent)
	}
	return out
}
