// Package paper 内存模拟交易所：用于 dry run 和测试。
//
// 行为：
//   - 限价单挂在内存订单簿上，按余额冻结资金（bid 冻结 quote，ask 冻结 base）
//   - 每次 GetOpenOrders 时，用当前盘口撮合被穿越的挂单（bid >= 卖一 或 ask <= 买一）
//   - 撤不存在的订单返回 domain.ErrAlreadyGone
//   - 可按方法名注入错误（与 sdk mock client 相同的 ErrorOnNext 方式）
package paper

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/ladderquote/internal/domain"
	"github.com/betbot/ladderquote/internal/ports"
)

var log = logrus.WithField("component", "paper_exchange")

type order struct {
	seq      int64
	snapshot domain.OrderSnapshot
	clientID string
}

// Exchange 内存模拟交易所
type Exchange struct {
	mu sync.Mutex

	quote       domain.ReferenceQuote
	upstream    ports.QuoteSource
	constraints domain.MarketConstraints
	balances    map[string]decimal.Decimal // 可用余额
	reserved    map[string]decimal.Decimal // 冻结余额
	orders      map[string]*order
	seq         int64
	autoMatch   bool

	// Calls 方法调用计数
	Calls map[string]int
	// errorQueue 按方法名注入的错误，依次弹出
	errorQueue map[string][]error
}

// Option 构造选项
type Option func(*Exchange)

// WithQuote 初始盘口
func WithQuote(q domain.ReferenceQuote) Option {
	return func(e *Exchange) { e.quote = q }
}

// WithUpstream 使用真实行情源提供盘口（dry run）
func WithUpstream(src ports.QuoteSource) Option {
	return func(e *Exchange) { e.upstream = src }
}

// WithConstraints 精度约束
func WithConstraints(c domain.MarketConstraints) Option {
	return func(e *Exchange) { e.constraints = c }
}

// WithBalance 设置可用余额
func WithBalance(currency string, amount decimal.Decimal) Option {
	return func(e *Exchange) { e.balances[currency] = amount }
}

// WithAutoMatch 是否在读取 open orders 时撮合被穿越的挂单（默认开启）
func WithAutoMatch(on bool) Option {
	return func(e *Exchange) { e.autoMatch = on }
}

// DefaultConstraints 常见现货精度
func DefaultConstraints() domain.MarketConstraints {
	return domain.MarketConstraints{
		PriceTick:   decimal.RequireFromString("0.01"),
		AmountTick:  decimal.RequireFromString("0.00001"),
		MinAmount:   decimal.RequireFromString("0.00001"),
		MinNotional: decimal.RequireFromString("1"),
		MinPrice:    decimal.RequireFromString("0.01"),
	}
}

// New 创建模拟交易所
func New(opts ...Option) *Exchange {
	e := &Exchange{
		constraints: DefaultConstraints(),
		balances:    make(map[string]decimal.Decimal),
		reserved:    make(map[string]decimal.Decimal),
		orders:      make(map[string]*order),
		autoMatch:   true,
		Calls:       make(map[string]int),
		errorQueue:  make(map[string][]error),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ ports.Exchange = (*Exchange)(nil)
var _ ports.SymbolCanceller = (*Exchange)(nil)

func (e *Exchange) Name() string { return "paper" }

// InjectError 让 method 的后续调用依次返回 errs（nil 表示该次正常）
func (e *Exchange) InjectError(method string, errs ...error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errorQueue[method] = append(e.errorQueue[method], errs...)
}

// trackCall 必须持锁调用
func (e *Exchange) trackCall(method string) error {
	e.Calls[method]++
	q := e.errorQueue[method]
	if len(q) == 0 {
		return nil
	}
	err := q[0]
	e.errorQueue[method] = q[1:]
	return err
}

// CallCount 调用次数
func (e *Exchange) CallCount(method string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Calls[method]
}

// SetQuote 更新盘口
func (e *Exchange) SetQuote(q domain.ReferenceQuote) {
	e.mu.Lock()
	e.quote = q
	e.mu.Unlock()
}

func (e *Exchange) GetReferenceQuote(ctx context.Context, symbol domain.Symbol) (domain.ReferenceQuote, error) {
	e.mu.Lock()
	if err := e.trackCall("GetReferenceQuote"); err != nil {
		e.mu.Unlock()
		return domain.ReferenceQuote{}, err
	}
	upstream := e.upstream
	q := e.quote
	e.mu.Unlock()

	if upstream == nil {
		return q, nil
	}
	live, err := upstream.GetReferenceQuote(ctx, symbol)
	if err != nil {
		return domain.ReferenceQuote{}, err
	}
	e.SetQuote(live)
	return live, nil
}

func (e *Exchange) GetOpenOrders(ctx context.Context, symbol domain.Symbol) ([]domain.OrderSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.trackCall("GetOpenOrders"); err != nil {
		return nil, err
	}
	if e.autoMatch {
		e.matchLocked(symbol)
	}
	return e.snapshotLocked(), nil
}

func (e *Exchange) PlaceLimitOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.trackCall("PlaceLimitOrder"); err != nil {
		return "", err
	}
	if !req.Side.Valid() {
		return "", fmt.Errorf("%w: invalid side", domain.ErrPlacement)
	}
	if !req.Price.IsPositive() || !req.Amount.IsPositive() {
		return "", fmt.Errorf("%w: price=%s amount=%s", domain.ErrBelowMinimum, req.Price, req.Amount)
	}
	if req.Amount.LessThan(e.constraints.MinAmount) {
		return "", fmt.Errorf("%w: amount=%s", domain.ErrBelowMinimum, req.Amount)
	}
	if e.constraints.MinNotional.IsPositive() && req.Amount.Mul(req.Price).LessThan(e.constraints.MinNotional) {
		return "", fmt.Errorf("%w: notional=%s", domain.ErrBelowMinimum, req.Amount.Mul(req.Price))
	}

	currency, need := reservation(req.Symbol, req.Side, req.Price, req.Amount)
	if avail, ok := e.balances[currency]; ok {
		if avail.LessThan(need) {
			return "", fmt.Errorf("%w: %s available=%s need=%s", domain.ErrInsufficientBalance, currency, avail, need)
		}
		e.balances[currency] = avail.Sub(need)
		e.reserved[currency] = e.reserved[currency].Add(need)
	}

	e.seq++
	id := fmt.Sprintf("paper-%d", e.seq)
	e.orders[id] = &order{
		seq:      e.seq,
		clientID: req.ClientOrderID,
		snapshot: domain.OrderSnapshot{ID: id, Side: req.Side, Price: req.Price, Amount: req.Amount},
	}
	log.Debugf("挂单: id=%s side=%s price=%s amount=%s", id, req.Side, req.Price, req.Amount)
	return id, nil
}

func (e *Exchange) CancelOrder(ctx context.Context, symbol domain.Symbol, orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.trackCall("CancelOrder"); err != nil {
		return err
	}
	o, ok := e.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyGone, orderID)
	}
	e.releaseLocked(symbol, o)
	delete(e.orders, orderID)
	return nil
}

func (e *Exchange) CancelAllOrders(ctx context.Context, symbol domain.Symbol) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.trackCall("CancelAllOrders"); err != nil {
		return err
	}
	for id, o := range e.orders {
		e.releaseLocked(symbol, o)
		delete(e.orders, id)
	}
	return nil
}

func (e *Exchange) GetMarketConstraints(ctx context.Context, symbol domain.Symbol) (domain.MarketConstraints, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.trackCall("GetMarketConstraints"); err != nil {
		return domain.MarketConstraints{}, err
	}
	return e.constraints, nil
}

// GetAvailableBalance 未设置余额的币种视为无限
func (e *Exchange) GetAvailableBalance(ctx context.Context, currency string) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.trackCall("GetAvailableBalance"); err != nil {
		return decimal.Zero, err
	}
	if v, ok := e.balances[currency]; ok {
		return v, nil
	}
	return decimal.NewFromInt(1_000_000_000), nil
}

// Fill 模拟整单成交（从订单簿移除）
func (e *Exchange) Fill(symbol domain.Symbol, orderID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	if !ok {
		return false
	}
	e.fillLocked(symbol, o)
	return true
}

// PartialFill 模拟部分成交：剩余数量减少 amount
func (e *Exchange) PartialFill(orderID string, amount decimal.Decimal) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	if !ok || !amount.LessThan(o.snapshot.Amount) {
		return false
	}
	o.snapshot.Amount = o.snapshot.Amount.Sub(amount)
	return true
}

// Remove 模拟外部（手工）撤单，不经过 CancelOrder 计数
func (e *Exchange) Remove(symbol domain.Symbol, orderID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	if !ok {
		return false
	}
	e.releaseLocked(symbol, o)
	delete(e.orders, orderID)
	return true
}

// Open 当前挂单（按挂单顺序）
func (e *Exchange) Open() []domain.OrderSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Balance 可用余额
func (e *Exchange) Balance(currency string) decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balances[currency]
}

func (e *Exchange) snapshotLocked() []domain.OrderSnapshot {
	list := make([]*order, 0, len(e.orders))
	for _, o := range e.orders {
		list = append(list, o)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	out := make([]domain.OrderSnapshot, 0, len(list))
	for _, o := range list {
		out = append(out, o.snapshot)
	}
	return out
}

func (e *Exchange) matchLocked(symbol domain.Symbol) {
	for _, o := range e.orders {
		s := o.snapshot
		crossed := (s.Side == domain.Bid && e.quote.Ask > 0 && s.Price.InexactFloat64() >= e.quote.Ask) ||
			(s.Side == domain.Ask && e.quote.Bid > 0 && s.Price.InexactFloat64() <= e.quote.Bid)
		if crossed {
			log.Infof("模拟成交: id=%s side=%s price=%s amount=%s", s.ID, s.Side, s.Price, s.Amount)
			e.fillLocked(symbol, o)
		}
	}
}

func (e *Exchange) fillLocked(symbol domain.Symbol, o *order) {
	s := o.snapshot
	spent, reservedAmt := reservation(symbol, s.Side, s.Price, s.Amount)
	if _, tracked := e.balances[spent]; tracked {
		e.reserved[spent] = e.reserved[spent].Sub(reservedAmt)
	}
	// 买单获得 base，卖单获得 quote
	gain, amount := symbol.Base, s.Amount
	if s.Side == domain.Ask {
		gain, amount = symbol.Quote, s.Amount.Mul(s.Price)
	}
	if v, tracked := e.balances[gain]; tracked {
		e.balances[gain] = v.Add(amount)
	}
	delete(e.orders, s.ID)
}

func (e *Exchange) releaseLocked(symbol domain.Symbol, o *order) {
	currency, amt := reservation(symbol, o.snapshot.Side, o.snapshot.Price, o.snapshot.Amount)
	if v, tracked := e.balances[currency]; tracked {
		e.balances[currency] = v.Add(amt)
		e.reserved[currency] = e.reserved[currency].Sub(amt)
	}
}

func reservation(symbol domain.Symbol, side domain.Side, price, amount decimal.Decimal) (string, decimal.Decimal) {
	if side == domain.Ask {
		return symbol.Base, amount
	}
	return symbol.Quote, amount.Mul(price)
}
