package ladder

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/betbot/ladderquote/internal/domain"
)

// Candidate 精度对齐后、可直接下单的一档
type Candidate struct {
	Rung     int
	Side     domain.Side
	Price    decimal.Decimal
	Amount   decimal.Decimal // base 数量
	Notional decimal.Decimal // Amount * Price
}

// Rejection 被丢弃的一档及原因
type Rejection struct {
	Rung int
	Err  error
}

// Normalize 把一档对齐到交易所精度。
//
//   - 价格按 priceTick 四舍五入（对 price/tick 的比值做 half-up，不对十进制字符串做）
//   - 低于 minPrice 时向上钳到 minPrice（再向上对齐到 tick），且至少为一个 tick
//   - 数量 = notional / 对齐后价格，按 amountTick 四舍五入
//   - 数量低于 minAmount，或金额低于 minNotional 时返回 domain.ErrBelowMinimum
//
// 被拒绝的一档由调用方跳过，不影响 ladder 其余部分。
func Normalize(r domain.Rung, side domain.Side, c domain.MarketConstraints) (Candidate, error) {
	if err := c.Validate(); err != nil {
		return Candidate{}, err
	}
	if !(r.Price > 0) || !(r.NotionalAmount > 0) {
		return Candidate{}, fmt.Errorf("%w: price=%v notional=%v", domain.ErrBelowMinimum, r.Price, r.NotionalAmount)
	}

	price := RoundToStep(decimal.NewFromFloat(r.Price), c.PriceTick)
	floor := c.MinPrice
	if floor.LessThan(c.PriceTick) {
		floor = c.PriceTick
	}
	if price.LessThan(floor) {
		price = CeilToStep(floor, c.PriceTick)
	}

	notional := decimal.NewFromFloat(r.NotionalAmount)
	amount := RoundToStep(notional.Div(price), c.AmountTick)
	if !amount.IsPositive() || amount.LessThan(c.MinAmount) {
		return Candidate{}, fmt.Errorf("%w: amount=%s minAmount=%s", domain.ErrBelowMinimum, amount, c.MinAmount)
	}
	value := amount.Mul(price)
	if c.MinNotional.IsPositive() && value.LessThan(c.MinNotional) {
		return Candidate{}, fmt.Errorf("%w: notional=%s minNotional=%s", domain.ErrBelowMinimum, value, c.MinNotional)
	}

	return Candidate{Side: side, Price: price, Amount: amount, Notional: value}, nil
}

// NormalizeLadder 对整条 ladder 做对齐；被拒绝的档位单独返回，其余照常保留。
func NormalizeLadder(rungs []domain.Rung, side domain.Side, c domain.MarketConstraints) ([]Candidate, []Rejection) {
	out := make([]Candidate, 0, len(rungs))
	var rejected []Rejection
	for i, r := range rungs {
		cand, err := Normalize(r, side, c)
		if err != nil {
			rejected = append(rejected, Rejection{Rung: i, Err: err})
			continue
		}
		cand.Rung = i
		out = append(out, cand)
	}
	return out, rejected
}

// Conforms 检查一个已对齐的候选是否满足约束（用于复核）
func Conforms(cand Candidate, c domain.MarketConstraints) error {
	if !cand.Price.Mod(c.PriceTick).IsZero() {
		return fmt.Errorf("price %s 不是 tick %s 的整数倍", cand.Price, c.PriceTick)
	}
	if !cand.Amount.Mod(c.AmountTick).IsZero() {
		return fmt.Errorf("amount %s 不是 tick %s 的整数倍", cand.Amount, c.AmountTick)
	}
	if cand.Amount.LessThan(c.MinAmount) {
		return fmt.Errorf("amount %s < minAmount %s", cand.Amount, c.MinAmount)
	}
	if c.MinNotional.IsPositive() && cand.Amount.Mul(cand.Price).LessThan(c.MinNotional) {
		return fmt.Errorf("notional < minNotional %s", c.MinNotional)
	}
	if cand.Price.LessThan(c.MinPrice) {
		return fmt.Errorf("price %s < minPrice %s", cand.Price, c.MinPrice)
	}
	return nil
}

// RoundToStep 四舍五入到 step 的整数倍（half-up 作用在 v/step 上）
func RoundToStep(v, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return v
	}
	return v.Div(step).Round(0).Mul(step)
}

// CeilToStep 向上对齐到 step 的整数倍
func CeilToStep(v, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return v
	}
	return v.Div(step).Ceil().Mul(step)
}
