package domain

import (
	"fmt"
	"time"
)

// StartupPolicy 启动时如何对待交易所上已有的挂单
type StartupPolicy string

const (
	StartupAdopt  StartupPolicy = "adopt"  // 接管已有挂单作为跟踪集合
	StartupCancel StartupPolicy = "cancel" // 启动前全部撤掉
	StartupIgnore StartupPolicy = "ignore" // 不处理，不跟踪
)

// QuoteConfig 单次运行的报价配置，进程入口构造一次后不再修改。
type QuoteConfig struct {
	Exchange string
	Symbol   Symbol
	Mode     Mode
	// Side 仅 mono 模式有效
	Side Side

	// Budgets 每一侧的 quote 计价总预算
	Budgets map[Side]float64

	SpreadPercent         float64
	OrdersPerSide         int
	PricePolicy           PricePolicy
	DriftThresholdPercent float64
	TickInterval          time.Duration

	InterOrderDelay      time.Duration // 相邻下单之间的固定间隔
	RateLimitBackoff     time.Duration // 触发限流后的退避时长
	CancelSettleDelay    time.Duration // 撤单后等待交易所落定再复核
	HeartbeatEvery       int           // 每 N 个无动作 tick 打一次心跳
	ShutdownTimeout      time.Duration // 退出时 best-effort 撤单的超时
	StartupOrders        StartupPolicy
	RefreshOnPartialFill bool
	SymbolWideCancel     bool // 允许使用交易所的整 symbol 批量撤单
}

// Sides 当前模式下活跃的报价方向
func (c QuoteConfig) Sides() []Side {
	if c.Mode == ModeBoth {
		return []Side{Bid, Ask}
	}
	return []Side{c.Side}
}

// Budget 某一侧预算
func (c QuoteConfig) Budget(side Side) float64 { return c.Budgets[side] }

// Validate 填充默认值并校验
func (c *QuoteConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("quote config 不能为空")
	}
	if c.Exchange == "" {
		return fmt.Errorf("exchange 未配置")
	}
	if c.Symbol.IsZero() {
		return fmt.Errorf("symbol 未配置")
	}
	switch c.Mode {
	case ModeMono:
		if !c.Side.Valid() {
			return fmt.Errorf("mono 模式必须配置 side（bid/ask）")
		}
	case ModeBoth:
	default:
		return fmt.Errorf("不支持的 mode: %q", c.Mode)
	}
	for _, s := range c.Sides() {
		if c.Budgets[s] <= 0 {
			return fmt.Errorf("%s 侧预算必须 > 0", s)
		}
	}
	if c.SpreadPercent <= 0 || c.SpreadPercent >= 100 {
		return fmt.Errorf("spreadPercent 必须在 (0, 100) 之间，当前 %v", c.SpreadPercent)
	}
	if c.OrdersPerSide < 1 {
		return fmt.Errorf("ordersPerSide 必须 >= 1")
	}
	if c.PricePolicy == "" {
		c.PricePolicy = PolicyBest
	}
	if _, err := ParsePricePolicy(string(c.PricePolicy)); err != nil {
		return err
	}

	// defaults
	if c.DriftThresholdPercent <= 0 {
		c.DriftThresholdPercent = c.SpreadPercent
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.InterOrderDelay <= 0 {
		c.InterOrderDelay = 100 * time.Millisecond
	}
	if c.RateLimitBackoff <= 0 {
		c.RateLimitBackoff = 2 * time.Second
	}
	if c.CancelSettleDelay <= 0 {
		c.CancelSettleDelay = 500 * time.Millisecond
	}
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = 30
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	switch c.StartupOrders {
	case "":
		c.StartupOrders = StartupAdopt
	case StartupAdopt, StartupCancel, StartupIgnore:
	default:
		return fmt.Errorf("不支持的 startupOrders: %q（支持: adopt/cancel/ignore）", c.StartupOrders)
	}
	return nil
}
