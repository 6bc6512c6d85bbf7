package domain

import (
	"errors"
	"fmt"
)

// 错误分类。
// 各组件在边界处收敛错误；只有拿不到参考价或整条 ladder 全部失败才升级为 tick 级失败，
// 而 tick 级失败也不会导致进程退出。
var (
	// ErrNoLiquidity 无法得到任何参考价（下一 tick 重试）
	ErrNoLiquidity = errors.New("no liquidity")

	// ErrPlacement 下单失败（单个 rung 跳过，ladder 继续）
	ErrPlacement = errors.New("placement failed")
	// ErrInsufficientBalance 余额不足
	ErrInsufficientBalance = fmt.Errorf("%w: insufficient balance", ErrPlacement)
	// ErrRateLimited 触发交易所限流
	ErrRateLimited = fmt.Errorf("%w: rate limited", ErrPlacement)
	// ErrBelowMinimum 低于交易所最小数量/金额
	ErrBelowMinimum = fmt.Errorf("%w: below exchange minimum", ErrPlacement)

	// ErrAlreadyGone 订单已不存在（已成交或已撤），撤单视为成功
	ErrAlreadyGone = errors.New("order already gone")
	// ErrCancel 撤单失败（不含 ErrAlreadyGone）
	ErrCancel = errors.New("cancel failed")

	// ErrReconciliationRace 撤单后复核仍看到挂单，延后到下一 tick
	ErrReconciliationRace = errors.New("reconciliation race: orders still resting after cancel")

	// ErrLadderFailed 整条 ladder 没有一个 rung 挂上
	ErrLadderFailed = errors.New("ladder failed: no rung placed")
)

// IsAlreadyGone 撤单错误是否可视为成功
func IsAlreadyGone(err error) bool { return errors.Is(err, ErrAlreadyGone) }

// IsRateLimited 是否限流
func IsRateLimited(err error) bool { return errors.Is(err, ErrRateLimited) }
