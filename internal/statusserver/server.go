// Package statusserver 只读的运维 HTTP 接口：健康检查、当前报价状态、
// Prometheus 指标、最近的 journal 记录和 pprof。
package statusserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/betbot/ladderquote/internal/domain"
	"github.com/betbot/ladderquote/internal/journal"
	"github.com/betbot/ladderquote/internal/reconcile"
)

var log = logrus.WithField("component", "statusserver")

// Engine 状态来源（*reconcile.Engine）
type Engine interface {
	Config() domain.QuoteConfig
	LastObservation() (reconcile.Observation, bool)
	SkippedTicks() uint64
}

// TickLog 最近的 tick 记录（*journal.Journal），可选
type TickLog interface {
	Recent(ctx context.Context, limit int) ([]journal.TickRecord, error)
}

type Config struct {
	Listen  string
	Engine  Engine
	Metrics http.Handler // 为空时不挂 /metrics
	Journal TickLog      // 为空时 /journal 返回 404
	// StaleAfter 最近一次 tick 超过该时长视为不健康；0 表示 5 个 tick 间隔
	StaleAfter time.Duration
	Pprof      bool
}

type Server struct {
	cfg Config
	now func() time.Time
	srv *http.Server
}

func New(cfg Config) *Server {
	if cfg.StaleAfter <= 0 && cfg.Engine != nil {
		cfg.StaleAfter = 5 * cfg.Engine.Config().TickInterval
	}
	return &Server{cfg: cfg, now: time.Now}
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealthz)
	r.GET("/status", s.handleStatus)
	r.GET("/journal", s.handleJournal)
	if s.cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.cfg.Metrics))
	}
	if s.cfg.Pprof {
		debug := r.Group("/debug/pprof")
		debug.GET("/", gin.WrapF(pprof.Index))
		debug.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		debug.GET("/profile", gin.WrapF(pprof.Profile))
		debug.GET("/symbol", gin.WrapF(pprof.Symbol))
		debug.GET("/trace", gin.WrapF(pprof.Trace))
		debug.GET("/:name", gin.WrapF(pprof.Index))
	}
	return r
}

// Start 非阻塞启动，ctx.Done() 时优雅关闭
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	s.srv = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("status server 异常退出: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	}()
	log.Infof("status server 监听 %s", ln.Addr())
	return nil
}

type sideStatus struct {
	State        reconcile.State `json:"state"`
	Tracked      int             `json:"tracked"`
	Expected     int             `json:"expected"`
	Settling     int             `json:"settling"`
	DriftPercent float64         `json:"drift_percent"`
}

type statusResponse struct {
	Exchange     string                `json:"exchange"`
	Symbol       string                `json:"symbol"`
	Mode         domain.Mode           `json:"mode"`
	Tick         uint64                `json:"tick"`
	At           *time.Time            `json:"at,omitempty"`
	State        reconcile.State       `json:"state,omitempty"`
	Action       reconcile.Action      `json:"action,omitempty"`
	LastError    string                `json:"last_error,omitempty"`
	SkippedTicks uint64                `json:"skipped_ticks"`
	Sides        map[string]sideStatus `json:"sides"`
}

func (s *Server) handleStatus(c *gin.Context) {
	cfg := s.cfg.Engine.Config()
	resp := statusResponse{
		Exchange:     cfg.Exchange,
		Symbol:       cfg.Symbol.String(),
		Mode:         cfg.Mode,
		SkippedTicks: s.cfg.Engine.SkippedTicks(),
		Sides:        map[string]sideStatus{},
	}
	if obs, ok := s.cfg.Engine.LastObservation(); ok {
		at := obs.At
		resp.Tick = obs.Tick
		resp.At = &at
		resp.State = obs.State
		resp.Action = obs.Action
		if obs.Err != nil {
			resp.LastError = obs.Err.Error()
		}
		for side, so := range obs.Sides {
			resp.Sides[side.String()] = sideStatus(so)
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHealthz(c *gin.Context) {
	obs, ok := s.cfg.Engine.LastObservation()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"status": "starting"})
		return
	}
	if age := s.now().Sub(obs.At); s.cfg.StaleAfter > 0 && age > s.cfg.StaleAfter {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "stale", "last_tick_age": age.String()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "tick": obs.Tick})
}

func (s *Server) handleJournal(c *gin.Context) {
	if s.cfg.Journal == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "journal disabled"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 1000 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be in [1, 1000]"})
		return
	}
	recs, err := s.cfg.Journal.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, recs)
}
