package quoter

import (
	"context"
	"fmt"

	"github.com/betbot/ladderquote/internal/domain"
	"github.com/betbot/ladderquote/internal/ports"
)

// CancelOptions 撤单选项
type CancelOptions struct {
	// SymbolWide 允许用整 symbol 批量撤单代替逐单撤单。
	// 批量撤单会连带撤掉不在 ids 里的挂单（包括手工单），所以默认关闭：
	// 只有配置 symbol_wide_cancel 且 both 模式下两侧一起撤时引擎才会打开，mono 模式从不使用。
	SymbolWide bool
}

// CancelReport 撤单报告
type CancelReport struct {
	Requested   int
	Cancelled   int
	AlreadyGone int // 已成交/已撤，视为成功
	Failed      int
	FailedIDs   []string
	Batch       bool // 是否由批量撤单完成
}

// Resolved 已确认不再挂着的数量
func (r CancelReport) Resolved() int { return r.Cancelled + r.AlreadyGone }

// CancelAll 撤掉 ids。
//
// 交易所支持且 opts.SymbolWide 时优先批量撤单，批量失败回退到逐单撤单。
// domain.ErrAlreadyGone 计入 AlreadyGone，不算失败；其余失败汇总为 domain.ErrCancel。
func (q *Quoter) CancelAll(ctx context.Context, symbol domain.Symbol, ids []string, opts CancelOptions) (CancelReport, error) {
	report := CancelReport{Requested: len(ids)}

	if batch, ok := q.ex.(ports.SymbolCanceller); ok && opts.SymbolWide {
		err := batch.CancelAllOrders(ctx, symbol)
		if err == nil || domain.IsAlreadyGone(err) {
			report.Cancelled = len(ids)
			report.Batch = true
			return report, nil
		}
		log.Warnf("批量撤单失败，回退逐单撤单: symbol=%s err=%v", symbol, err)
	}

	var lastErr error
	for _, id := range ids {
		err := q.ex.CancelOrder(ctx, symbol, id)
		switch {
		case err == nil:
			report.Cancelled++
		case domain.IsAlreadyGone(err):
			report.AlreadyGone++
		default:
			report.Failed++
			report.FailedIDs = append(report.FailedIDs, id)
			lastErr = err
			log.Warnf("撤单失败: id=%s err=%v", id, err)
		}
	}

	if report.Failed > 0 {
		return report, fmt.Errorf("%w: %d/%d 撤单失败: %v", domain.ErrCancel, report.Failed, report.Requested, lastErr)
	}
	return report, nil
}
