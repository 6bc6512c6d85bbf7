package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/betbot/ladderquote/internal/quoter"
)

// Run 对账主循环，直到 ctx 结束。
//
// 启动检查失败直接返回错误；之后任何 tick 错误都不会结束循环。
// 退出顺序：停止定时器 -> 等待进行中的 tick -> best-effort 撤掉全部跟踪订单。
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Start(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(e.cfg.TickInterval)
	var wg sync.WaitGroup
	launch := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Tick(ctx)
		}()
	}

	launch()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			launch()
		}
	}
	ticker.Stop()
	wg.Wait()

	report, err := e.cancelOnShutdown()
	if err != nil {
		log.Warnf("退出撤单未全部成功: %+v err=%v", report, err)
	} else if report.Requested > 0 {
		log.Infof("退出撤单完成: %+v", report)
	}
	return nil
}

// cancelOnShutdown 撤掉全部跟踪与待确认订单；有超时，不保证成功
func (e *Engine) cancelOnShutdown() (quoter.CancelReport, error) {
	var ids []string
	for _, side := range e.sides {
		b := e.books[side]
		b.release(b.trackedIDs())
		ids = append(ids, b.settlingIDs()...)
	}
	if len(ids) == 0 {
		return quoter.CancelReport{}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.ShutdownTimeout)
	defer cancel()
	log.Infof("🛑 退出前撤单: count=%d", len(ids))
	return e.quoter.CancelAll(ctx, e.cfg.Symbol, ids, quoter.CancelOptions{SymbolWide: e.symbolWide(true)})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
