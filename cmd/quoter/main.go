package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/ladderquote/internal/domain"
	"github.com/betbot/ladderquote/internal/exchange"
	"github.com/betbot/ladderquote/internal/exchange/binance"
	"github.com/betbot/ladderquote/internal/exchange/paper"
	"github.com/betbot/ladderquote/internal/journal"
	"github.com/betbot/ladderquote/internal/metrics"
	"github.com/betbot/ladderquote/internal/reconcile"
	"github.com/betbot/ladderquote/internal/statusserver"
	"github.com/betbot/ladderquote/pkg/config"
	"github.com/betbot/ladderquote/pkg/logger"
	"github.com/betbot/ladderquote/pkg/shutdown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "配置文件路径（支持 .yaml, .yml, .json）")
	envFile := flag.String("env", ".env", ".env 文件路径（不存在时忽略）")
	dryRun := flag.Bool("dry-run", false, "只读真实行情，订单在内存模拟")
	statusListen := flag.String("status", "", "状态服务监听地址（覆盖配置，例如 127.0.0.1:9090）")
	paperQuote := flag.String("paper-quote", "", "exchange=paper 时的初始行情: bid,ask[,last]")
	pprofOn := flag.Bool("pprof", false, "在状态服务上挂载 /debug/pprof")
	flag.Parse()

	cfg, err := config.Load(*configPath, config.LoadOptions{EnvFile: *envFile, DryRun: *dryRun})
	if err != nil {
		fmt.Fprintln(os.Stderr, "加载配置失败:", err)
		return 2
	}
	if *statusListen != "" {
		cfg.StatusListen = *statusListen
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "初始化日志失败:", err)
		return 2
	}
	defer logger.Close()

	var paperOpts []paper.Option
	if *paperQuote != "" {
		q, err := parsePaperQuote(*paperQuote)
		if err != nil {
			logrus.Errorf("解析 -paper-quote 失败: %v", err)
			return 2
		}
		paperOpts = append(paperOpts, paper.WithQuote(q))
	}

	ex, err := exchange.Open(exchange.Options{
		Name:   cfg.Quote.Exchange,
		DryRun: cfg.DryRun,
		Binance: binance.Config{
			BaseURL:           cfg.Binance.BaseURL,
			APIKey:            cfg.Credentials.APIKey,
			APISecret:         cfg.Credentials.APISecret,
			RecvWindow:        cfg.Binance.RecvWindow,
			Timeout:           cfg.Binance.Timeout,
			OrdersPerSecond:   cfg.Binance.OrdersPerSecond,
			RequestsPerMinute: cfg.Binance.RequestsPerMinute,
		},
		Paper: paperOpts,
	})
	if err != nil {
		logrus.Errorf("创建交易所适配器失败: %v", err)
		return 2
	}

	sm := shutdown.NewManager()
	m := metrics.New(true)
	observers := reconcile.MultiObserver{m}

	var jr *journal.Journal
	if cfg.JournalPath != "" {
		jr, err = journal.Open(cfg.JournalPath)
		if err != nil {
			logrus.Errorf("打开 journal 失败: %v", err)
			return 2
		}
		sm.OnShutdown("journal", func(context.Context) error { return jr.Close() })
		observers = append(observers, jr)
	}

	engine, err := reconcile.New(cfg.Quote, ex, reconcile.WithObserver(observers))
	if err != nil {
		logrus.Errorf("配置无效: %v", err)
		sm.Shutdown(context.Background())
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.StatusListen != "" {
		sc := statusserver.Config{
			Listen:  cfg.StatusListen,
			Engine:  engine,
			Metrics: m.Handler(),
			Pprof:   *pprofOn,
		}
		if jr != nil {
			sc.Journal = jr
		}
		if err := statusserver.New(sc).Start(ctx); err != nil {
			logrus.Errorf("启动状态服务失败: %v", err)
			sm.Shutdown(context.Background())
			return 2
		}
	}

	logrus.Infof("启动报价: exchange=%s symbol=%s mode=%s sides=%v orders=%d spread=%.4g%% tick=%s",
		ex.Name(), cfg.Quote.Symbol, cfg.Quote.Mode, cfg.Quote.Sides(),
		cfg.Quote.OrdersPerSide, cfg.Quote.SpreadPercent, cfg.Quote.TickInterval)

	runErr := engine.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if failed := sm.Shutdown(shutdownCtx); failed > 0 {
		logrus.Warnf("%d 个关闭回调失败", failed)
	}

	if runErr != nil {
		logrus.Errorf("报价启动失败: %v", runErr)
		return 1
	}
	logrus.Infof("已退出")
	return 0
}

func parsePaperQuote(v string) (domain.ReferenceQuote, error) {
	parts := strings.Split(v, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return domain.ReferenceQuote{}, fmt.Errorf("格式: bid,ask[,last]，当前 %q", v)
	}
	nums := make([]float64, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return domain.ReferenceQuote{}, fmt.Errorf("%q 不是数字", p)
		}
		nums[i] = f
	}
	q := domain.ReferenceQuote{Bid: nums[0], Ask: nums[1]}
	if len(nums) == 3 {
		q.Last = nums[2]
	}
	return q, nil
}
