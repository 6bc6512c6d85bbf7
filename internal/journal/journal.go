// Package journal 把 tick 结果和下单记录写入本地 SQLite，用于事后审计。
// 跟踪集合不从 journal 恢复：重启后仍以交易所 open orders 为准。
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/betbot/ladderquote/internal/reconcile"
)

var log = logrus.WithField("component", "journal")

const defaultBuffer = 256

// TickRecord ticks 表的一行
type TickRecord struct {
	Tick       uint64    `json:"tick"`
	At         time.Time `json:"at"`
	DurationMS float64   `json:"duration_ms"`
	State      string    `json:"state"`
	Action     string    `json:"action"`
	Placed     int       `json:"placed"`
	Cancelled  int       `json:"cancelled"`
	Rejected   int       `json:"rejected"`
	Sides      string    `json:"sides"`
	Error      string    `json:"error,omitempty"`
}

// Journal 实现 reconcile.Observer。Observe 只入队，由后台 goroutine 写库，
// 队列满时丢弃并计数。
type Journal struct {
	db *sql.DB

	mu     sync.RWMutex
	closed bool
	ch     chan reconcile.Observation
	done   chan struct{}

	dropped atomic.Int64
}

// Open 打开（或创建）数据库并迁移表结构
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite：单连接
	db.SetMaxIdleConns(1)

	j := &Journal{
		db:   db,
		ch:   make(chan reconcile.Observation, defaultBuffer),
		done: make(chan struct{}),
	}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	go j.loop()
	return j, nil
}

func (j *Journal) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS ticks (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  tick INTEGER NOT NULL,
  at TEXT NOT NULL,
  duration_ms REAL NOT NULL,
  state TEXT NOT NULL,
  action TEXT NOT NULL,
  placed INTEGER NOT NULL DEFAULT 0,
  cancelled INTEGER NOT NULL DEFAULT 0,
  rejected INTEGER NOT NULL DEFAULT 0,
  sides TEXT NOT NULL,
  error TEXT
);`,
		`CREATE INDEX IF NOT EXISTS idx_ticks_action ON ticks(action);`,
		`
CREATE TABLE IF NOT EXISTS placements (
  order_id TEXT NOT NULL,
  client_order_id TEXT,
  tick INTEGER NOT NULL,
  side TEXT NOT NULL,
  rung INTEGER NOT NULL,
  price TEXT NOT NULL,
  amount TEXT NOT NULL,
  quote_value TEXT NOT NULL,
  placed_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_placements_tick ON placements(tick);`,
	}
	for _, st := range stmts {
		if _, err := j.db.ExecContext(ctx, st); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Observe 实现 reconcile.Observer；无动作的 tick 和被跳过的 tick 不记录
func (j *Journal) Observe(o reconcile.Observation) {
	if o.Action == reconcile.ActionNone || o.Action == reconcile.ActionSkipped {
		return
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}
	select {
	case j.ch <- o:
	default:
		if n := j.dropped.Add(1); n == 1 || n%100 == 0 {
			log.Warnf("journal 队列已满，已丢弃 %d 条记录", n)
		}
	}
}

// Dropped 因队列满被丢弃的记录数
func (j *Journal) Dropped() int64 { return j.dropped.Load() }

func (j *Journal) loop() {
	defer close(j.done)
	for o := range j.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := j.write(ctx, o); err != nil {
			log.Errorf("写入 tick %d 失败: %v", o.Tick, err)
		}
		cancel()
	}
}

func (j *Journal) write(ctx context.Context, o reconcile.Observation) error {
	sides, err := json.Marshal(o.Sides)
	if err != nil {
		return fmt.Errorf("marshal sides: %w", err)
	}
	var errText sql.NullString
	if o.Err != nil {
		errText = sql.NullString{String: o.Err.Error(), Valid: true}
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO ticks (tick, at, duration_ms, state, action, placed, cancelled, rejected, sides, error)
VALUES (?,?,?,?,?,?,?,?,?,?)
`, o.Tick, o.At.UTC().Format(time.RFC3339Nano), float64(o.Duration)/float64(time.Millisecond),
		string(o.State), string(o.Action), len(o.Placed), o.Cancelled, o.Rejected, string(sides), errText); err != nil {
		return fmt.Errorf("insert tick: %w", err)
	}
	for _, p := range o.Placed {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO placements (order_id, client_order_id, tick, side, rung, price, amount, quote_value, placed_at)
VALUES (?,?,?,?,?,?,?,?,?)
`, p.ID, p.ClientOrderID, o.Tick, p.Side.String(), p.Rung, p.Price.String(), p.BaseAmount.String(),
			p.QuoteValue.String(), p.PlacedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("insert placement %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// Recent 最近 limit 条 tick 记录（新的在前）
func (j *Journal) Recent(ctx context.Context, limit int) ([]TickRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT tick, at, duration_ms, state, action, placed, cancelled, rejected, sides, COALESCE(error, '')
FROM ticks
ORDER BY id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TickRecord
	for rows.Next() {
		var r TickRecord
		var at string
		if err := rows.Scan(&r.Tick, &at, &r.DurationMS, &r.State, &r.Action, &r.Placed, &r.Cancelled, &r.Rejected, &r.Sides, &r.Error); err != nil {
			return nil, err
		}
		r.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// PlacementCount 某个 tick 记录的下单数；tick=0 时统计全部
func (j *Journal) PlacementCount(ctx context.Context, tick uint64) (int, error) {
	q := `SELECT COUNT(*) FROM placements`
	args := []any{}
	if tick > 0 {
		q += ` WHERE tick=?`
		args = append(args, tick)
	}
	var n int
	if err := j.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Close 停止接收、写完队列中剩余的记录后关闭数据库
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.ch)
	j.mu.Unlock()

	<-j.done
	return j.db.Close()
}

var _ reconcile.Observer = (*Journal)(nil)
