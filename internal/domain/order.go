package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Rung 规划阶段的一档（精度对齐之前）
type Rung struct {
	Price          float64 // 规划价格
	NotionalAmount float64 // 该档 quote 计价金额
}

// OrderRequest 限价单请求
type OrderRequest struct {
	Symbol        Symbol
	Side          Side
	Price         decimal.Decimal
	Amount        decimal.Decimal // base 数量
	ClientOrderID string
}

// PlacedOrder 已被交易所接受的挂单。
// 跟踪集合只在内存中；journal 只做审计，重启后不据此恢复。
type PlacedOrder struct {
	ID            string
	ClientOrderID string
	Side          Side
	Price         decimal.Decimal
	BaseAmount    decimal.Decimal
	QuoteValue    decimal.Decimal
	Rung          int // 在 ladder 中的下标（0 = 最靠近参考价）
	PlacedAt      time.Time
}

// OrderSnapshot 交易所 open orders 快照中的一条
type OrderSnapshot struct {
	ID     string
	Side   Side
	Price  decimal.Decimal
	Amount decimal.Decimal // 剩余未成交数量
}
