package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Symbol 交易对（BASE/QUOTE）
type Symbol struct {
	Base  string
	Quote string
}

// ParseSymbol 解析 "BTC/USDT"，也兼容 "BTC-USDT"、"btc_usdt"
func ParseSymbol(v string) (Symbol, error) {
	s := strings.ToUpper(strings.TrimSpace(v))
	for _, sep := range []string{"/", "-", "_"} {
		if parts := strings.Split(s, sep); len(parts) == 2 {
			base, quote := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
			if base != "" && quote != "" {
				return Symbol{Base: base, Quote: quote}, nil
			}
		}
	}
	return Symbol{}, fmt.Errorf("无效的 symbol: %q（格式: BASE/QUOTE）", v)
}

func (s Symbol) String() string { return s.Base + "/" + s.Quote }

// IsZero 是否为空
func (s Symbol) IsZero() bool { return s.Base == "" && s.Quote == "" }

// SpendCurrency 某一侧挂单占用的币种：bid 占用 quote，ask 占用 base
func (s Symbol) SpendCurrency(side Side) string {
	if side == Ask {
		return s.Base
	}
	return s.Quote
}

// ReferenceQuote 盘口快照。0 表示该项不可用。
type ReferenceQuote struct {
	Bid  float64
	Ask  float64
	Last float64
}

// MarketConstraints 交易对精度与最小下单约束。
// 启动时从交易所读取一次并在整个运行期间缓存。
type MarketConstraints struct {
	PriceTick   decimal.Decimal
	AmountTick  decimal.Decimal
	MinAmount   decimal.Decimal
	MinNotional decimal.Decimal
	MinPrice    decimal.Decimal
}

// Validate 约束必须有正的 tick
func (c MarketConstraints) Validate() error {
	if !c.PriceTick.IsPositive() {
		return fmt.Errorf("priceTick 必须 > 0，当前 %s", c.PriceTick)
	}
	if !c.AmountTick.IsPositive() {
		return fmt.Errorf("amountTick 必须 > 0，当前 %s", c.AmountTick)
	}
	if c.MinAmount.IsNegative() || c.MinNotional.IsNegative() || c.MinPrice.IsNegative() {
		return fmt.Errorf("最小约束不能为负: %+v", c)
	}
	return nil
}
