// Package quoter 把对齐后的一侧 ladder 挂到交易所，并负责批量撤单。
package quoter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/betbot/ladderquote/internal/domain"
	"github.com/betbot/ladderquote/internal/ladder"
	"github.com/betbot/ladderquote/internal/ports"
)

var log = logrus.WithField("component", "quoter")

// Exchange quoter 需要的交易所能力
type Exchange interface {
	ports.OrderPlacer
	ports.OrderCanceler
}

// Config 下单节奏
type Config struct {
	InterOrderDelay  time.Duration
	RateLimitBackoff time.Duration
	// Sleep 等待函数，为空时按 ctx 可中断地 sleep
	Sleep func(ctx context.Context, d time.Duration) error
}

// Quoter 单侧下单/撤单。无内部状态，可被多个调用方共用。
type Quoter struct {
	ex  Exchange
	cfg Config

	sleep    func(ctx context.Context, d time.Duration) error
	clientID func() string
	now      func() time.Time
}

func New(ex Exchange, cfg Config) *Quoter {
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	return &Quoter{
		ex:       ex,
		cfg:      cfg,
		sleep:    sleep,
		clientID: func() string { return uuid.NewString() },
		now:      time.Now,
	}
}

// Failure 下单失败的一档
type Failure struct {
	Rung int
	Err  error
}

// Result 一次 Quote 的结果；Placed 就是交易所确认接受的全部挂单
type Result struct {
	Placed []domain.PlacedOrder
	Failed []Failure
}

// IDs 已挂单 id
func (r Result) IDs() []string {
	ids := make([]string, 0, len(r.Placed))
	for _, p := range r.Placed {
		ids = append(ids, p.ID)
	}
	return ids
}

// Quote 按顺序挂出 cands，相邻两单之间固定等待 InterOrderDelay。
//
// 单档失败只记录并跳过；触发限流时先退避 RateLimitBackoff 再继续下一档。
// ctx 结束时立即返回已挂上的部分和 ctx.Err()，调用方仍需跟踪 Result.Placed。
// 一档都没挂上时返回 domain.ErrLadderFailed。
func (q *Quoter) Quote(ctx context.Context, symbol domain.Symbol, side domain.Side, cands []ladder.Candidate) (Result, error) {
	var res Result
	if len(cands) == 0 {
		return res, fmt.Errorf("%w: %s 侧没有可下单的档位", domain.ErrLadderFailed, side)
	}

	for i, c := range cands {
		if i > 0 {
			if err := q.sleep(ctx, q.cfg.InterOrderDelay); err != nil {
				return res, err
			}
		}

		req := domain.OrderRequest{
			Symbol:        symbol,
			Side:          side,
			Price:         c.Price,
			Amount:        c.Amount,
			ClientOrderID: q.clientID(),
		}
		id, err := q.ex.PlaceLimitOrder(ctx, req)
		if err != nil {
			res.Failed = append(res.Failed, Failure{Rung: c.Rung, Err: err})
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			if domain.IsRateLimited(err) {
				log.Warnf("⚠️ 下单限流，退避 %s 后继续: side=%s rung=%d", q.cfg.RateLimitBackoff, side, c.Rung)
				if serr := q.sleep(ctx, q.cfg.RateLimitBackoff); serr != nil {
					return res, serr
				}
				continue
			}
			log.Warnf("下单失败，跳过该档: side=%s rung=%d price=%s amount=%s err=%v", side, c.Rung, c.Price, c.Amount, err)
			continue
		}

		res.Placed = append(res.Placed, domain.PlacedOrder{
			ID:            id,
			ClientOrderID: req.ClientOrderID,
			Side:          side,
			Price:         c.Price,
			BaseAmount:    c.Amount,
			QuoteValue:    c.Notional,
			Rung:          c.Rung,
			PlacedAt:      q.now(),
		})
	}

	if len(res.Placed) == 0 {
		return res, fmt.Errorf("%w: %s 侧 %d 档全部失败: %v", domain.ErrLadderFailed, side, len(cands), res.Failed[len(res.Failed)-1].Err)
	}
	log.Infof("✅ %s 侧挂单完成: %d/%d", side, len(res.Placed), len(cands))
	return res, nil
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
