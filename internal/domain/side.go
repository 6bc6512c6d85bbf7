package domain

import (
	"fmt"
	"strings"
)

// Side 报价方向（bid / ask）
//
// 交易所侧只认 buy/sell，这里统一使用 Bid/Ask 两值类型，
// 所有与交易所词汇的转换只通过 OrderSide()/SideFromOrderSide() 完成。
type Side int

const (
	Bid Side = iota + 1
	Ask
)

// OrderSide 交易所订单方向
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	default:
		return "unknown"
	}
}

// Valid 是否为合法方向
func (s Side) Valid() bool { return s == Bid || s == Ask }

// OrderSide 映射到交易所方向：bid -> buy, ask -> sell
func (s Side) OrderSide() OrderSide {
	if s == Ask {
		return OrderSideSell
	}
	return OrderSideBuy
}

// Opposite 对侧
func (s Side) Opposite() Side {
	if s == Ask {
		return Bid
	}
	return Ask
}

// SideFromOrderSide 交易所方向 -> 报价方向
func SideFromOrderSide(os OrderSide) (Side, error) {
	switch OrderSide(strings.ToLower(strings.TrimSpace(string(os)))) {
	case OrderSideBuy:
		return Bid, nil
	case OrderSideSell:
		return Ask, nil
	default:
		return 0, fmt.Errorf("未知订单方向: %q", os)
	}
}

// ParseSide 解析配置中的方向，兼容 buy/sell 写法
func ParseSide(v string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "bid", "buy", "bids":
		return Bid, nil
	case "ask", "sell", "asks":
		return Ask, nil
	default:
		return 0, fmt.Errorf("不支持的 side: %q（支持: bid/ask）", v)
	}
}

func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Side) UnmarshalText(b []byte) error {
	v, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Mode 报价模式
type Mode string

const (
	ModeMono Mode = "mono" // 单边报价
	ModeBoth Mode = "both" // 双边同步报价
)

func ParseMode(v string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(v))) {
	case ModeMono:
		return ModeMono, nil
	case ModeBoth:
		return ModeBoth, nil
	default:
		return "", fmt.Errorf("不支持的 mode: %q（支持: mono/both）", v)
	}
}

// PricePolicy 参考价选取策略
type PricePolicy string

const (
	PolicyFirstAsk PricePolicy = "first_ask"
	PolicyFirstBid PricePolicy = "first_bid"
	PolicyMid      PricePolicy = "mid"
	PolicyBest     PricePolicy = "best"
)

func ParsePricePolicy(v string) (PricePolicy, error) {
	switch p := PricePolicy(strings.ToLower(strings.TrimSpace(v))); p {
	case PolicyFirstAsk, PolicyFirstBid, PolicyMid, PolicyBest:
		return p, nil
	default:
		return "", fmt.Errorf("不支持的 price policy: %q（支持: first_ask/first_bid/mid/best）", v)
	}
}
