// Package exchange 按名称构造交易所适配器。
package exchange

import (
	"context"
	"fmt"
	"strings"

	"github.com/betbot/ladderquote/internal/domain"
	"github.com/betbot/ladderquote/internal/exchange/binance"
	"github.com/betbot/ladderquote/internal/exchange/paper"
	"github.com/betbot/ladderquote/internal/ports"
)

// Options 构造参数
type Options struct {
	Name    string
	DryRun  bool
	Binance binance.Config
	// Paper 仅在 name=paper 或 dry run 时使用
	Paper []paper.Option
}

// Open 返回适配器。
// dry run 时下单/撤单走内存模拟交易所，行情仍从真实交易所读取（name=paper 时无上游行情）。
func Open(opts Options) (ports.Exchange, error) {
	name := strings.ToLower(strings.TrimSpace(opts.Name))
	switch name {
	case "paper":
		return paper.New(opts.Paper...), nil
	case "binance":
		live := binance.New(opts.Binance)
		if !opts.DryRun {
			return live, nil
		}
		return newDryRun(live, opts.Paper...), nil
	default:
		return nil, fmt.Errorf("不支持的交易所: %q（支持: binance/paper）", opts.Name)
	}
}

// dryRun 行情与精度约束来自真实交易所，订单与余额在内存模拟
type dryRun struct {
	*paper.Exchange
	live ports.Exchange
}

func newDryRun(live ports.Exchange, extra ...paper.Option) *dryRun {
	opts := append([]paper.Option{paper.WithUpstream(live)}, extra...)
	return &dryRun{Exchange: paper.New(opts...), live: live}
}

func (d *dryRun) Name() string { return d.live.Name() + "(dry-run)" }

func (d *dryRun) GetMarketConstraints(ctx context.Context, symbol domain.Symbol) (domain.MarketConstraints, error) {
	return d.live.GetMarketConstraints(ctx, symbol)
}
