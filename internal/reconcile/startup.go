package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/betbot/ladderquote/internal/domain"
	"github.com/betbot/ladderquote/internal/quoter"
	"github.com/betbot/ladderquote/pkg/marketmath"
)

// Start 启动检查：缓存精度约束、确认能得到参考价、按 startupOrders 处理已有挂单。
// 这里的失败属于配置级错误，调用方应终止运行。
func (e *Engine) Start(ctx context.Context) error {
	symbol := e.cfg.Symbol
	c, err := e.ex.GetMarketConstraints(ctx, symbol)
	if err != nil {
		return fmt.Errorf("读取 %s 精度约束失败: %w", symbol, err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%s 精度约束无效: %w", symbol, err)
	}
	e.constraints = c

	q, err := e.ex.GetReferenceQuote(ctx, symbol)
	if err != nil {
		return fmt.Errorf("读取 %s 行情失败: %w", symbol, err)
	}
	for _, side := range e.sides {
		if _, err := marketmath.ResolveReference(e.cfg.PricePolicy, q, side); err != nil {
			return fmt.Errorf("启动时无法得到 %s 侧参考价: %w", side, err)
		}
	}

	snapshot, err := e.ex.GetOpenOrders(ctx, symbol)
	if err != nil {
		return fmt.Errorf("读取 %s 挂单失败: %w", symbol, err)
	}
	if err := e.applyStartupPolicy(ctx, snapshot); err != nil {
		return err
	}

	e.started = true
	log.Infof("🚀 对账循环就绪: exchange=%s symbol=%s mode=%s sides=%v spread=%.4g%% orders=%d policy=%s",
		e.ex.Name(), symbol, e.cfg.Mode, e.sides, e.cfg.SpreadPercent, e.cfg.OrdersPerSide, e.cfg.PricePolicy)
	return nil
}

func (e *Engine) applyStartupPolicy(ctx context.Context, snapshot []domain.OrderSnapshot) error {
	bySide := make(map[domain.Side][]domain.OrderSnapshot)
	for _, o := range snapshot {
		if _, active := e.books[o.Side]; active {
			bySide[o.Side] = append(bySide[o.Side], o)
		}
	}

	switch e.cfg.StartupOrders {
	case domain.StartupAdopt:
		for _, side := range e.sides {
			placed := adopt(side, bySide[side], e.now())
			// 期望数按配置的档位数算：接管到的梯子不完整时首个 tick 即按缺档重建
			e.books[side].track(placed, e.cfg.OrdersPerSide)
			if len(placed) > 0 {
				log.Infof("接管已有挂单: side=%s count=%d", side, len(placed))
			}
		}
	case domain.StartupCancel:
		var ids []string
		for _, side := range e.sides {
			for _, o := range bySide[side] {
				e.books[side].settling[o.ID] = struct{}{}
				ids = append(ids, o.ID)
			}
		}
		if len(ids) == 0 {
			return nil
		}
		report, err := e.quoter.CancelAll(ctx, e.cfg.Symbol, ids, quoter.CancelOptions{SymbolWide: e.symbolWide(true)})
		if err != nil {
			// settling 中的订单会在第一个 tick 复核
			log.Warnf("启动撤单未全部成功: %+v err=%v", report, err)
			return nil
		}
		log.Infof("启动撤单完成: %+v", report)
	case domain.StartupIgnore:
		if len(snapshot) > 0 {
			log.Infof("忽略 %d 个已有挂单（不跟踪）", len(snapshot))
		}
	}
	return nil
}

// adopt 把已有挂单转成跟踪订单，按距离参考价由近到远编号
func adopt(side domain.Side, orders []domain.OrderSnapshot, now time.Time) []domain.PlacedOrder {
	sorted := append([]domain.OrderSnapshot(nil), orders...)
	sort.Slice(sorted, func(i, j int) bool {
		if side == domain.Bid {
			return sorted[i].Price.GreaterThan(sorted[j].Price)
		}
		return sorted[i].Price.LessThan(sorted[j].Price)
	})
	out := make([]domain.PlacedOrder, 0, len(sorted))
	for i, o := range sorted {
		out = append(out, domain.PlacedOrder{
			ID:         o.ID,
			Side:       side,
			Price:      o.Price,
			BaseAmount: o.Amount,
			QuoteValue: o.Amount.Mul(o.Price),
			Rung:       i,
			PlacedAt:   now,
		})
	}
	return out
}
