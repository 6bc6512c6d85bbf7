package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/betbot/ladderquote/internal/domain"
	"github.com/betbot/ladderquote/pkg/secretstore"
)

// 环境变量前缀
const envPrefix = "LADDER_"

// 凭证在环境变量 / secret store 中的 key
const (
	KeyAPIKey    = "BINANCE_API_KEY"
	KeyAPISecret = "BINANCE_API_SECRET"
)

// ConfigFile 配置文件结构（YAML/JSON）
type ConfigFile struct {
	Exchange string `yaml:"exchange" json:"exchange"`
	Symbol   string `yaml:"symbol" json:"symbol"`
	Mode     string `yaml:"mode" json:"mode"`
	Side     string `yaml:"side" json:"side"`

	// TotalQuoteAmount 每一侧的 quote 计价预算；BidQuoteAmount/AskQuoteAmount 可单独覆盖
	TotalQuoteAmount float64 `yaml:"total_quote_amount" json:"total_quote_amount"`
	BidQuoteAmount   float64 `yaml:"bid_quote_amount" json:"bid_quote_amount"`
	AskQuoteAmount   float64 `yaml:"ask_quote_amount" json:"ask_quote_amount"`

	SpreadPercent         float64  `yaml:"spread_percent" json:"spread_percent"`
	NumberOfOrders        int      `yaml:"number_of_orders" json:"number_of_orders"`
	PricePolicy           string   `yaml:"price_policy" json:"price_policy"`
	DriftThresholdPercent float64  `yaml:"drift_threshold_percent" json:"drift_threshold_percent"`
	TickInterval          Duration `yaml:"tick_interval" json:"tick_interval"`

	InterOrderDelay      Duration `yaml:"inter_order_delay" json:"inter_order_delay"`
	RateLimitBackoff     Duration `yaml:"rate_limit_backoff" json:"rate_limit_backoff"`
	CancelSettleDelay    Duration `yaml:"cancel_settle_delay" json:"cancel_settle_delay"`
	HeartbeatEvery       int      `yaml:"heartbeat_every" json:"heartbeat_every"`
	ShutdownTimeout      Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	StartupOrders        string   `yaml:"startup_orders" json:"startup_orders"`
	RefreshOnPartialFill bool     `yaml:"refresh_on_partial_fill" json:"refresh_on_partial_fill"`
	SymbolWideCancel     bool     `yaml:"symbol_wide_cancel" json:"symbol_wide_cancel"`
	DryRun               bool     `yaml:"dry_run" json:"dry_run"`

	Binance struct {
		BaseURL           string   `yaml:"base_url" json:"base_url"`
		RecvWindow        Duration `yaml:"recv_window" json:"recv_window"`
		Timeout           Duration `yaml:"timeout" json:"timeout"`
		OrdersPerSecond   float64  `yaml:"orders_per_second" json:"orders_per_second"`
		RequestsPerMinute int      `yaml:"requests_per_minute" json:"requests_per_minute"`
	} `yaml:"binance" json:"binance"`

	Log struct {
		Level      string `yaml:"level" json:"level"`
		Format     string `yaml:"format" json:"format"`
		File       string `yaml:"file" json:"file"`
		MaxSize    int    `yaml:"max_size" json:"max_size"`
		MaxBackups int    `yaml:"max_backups" json:"max_backups"`
		MaxAge     int    `yaml:"max_age" json:"max_age"`
		Compress   bool   `yaml:"compress" json:"compress"`
	} `yaml:"log" json:"log"`

	StatusListen string `yaml:"status_listen" json:"status_listen"`
	JournalPath  string `yaml:"journal_path" json:"journal_path"`

	Secrets struct {
		Path   string `yaml:"path" json:"path"`
		Prefix string `yaml:"prefix" json:"prefix"`
	} `yaml:"secrets" json:"secrets"`
}

// Credentials 交易所 API 凭证
type Credentials struct {
	APIKey    string
	APISecret string
}

// BinanceConfig REST 适配器参数
type BinanceConfig struct {
	BaseURL           string
	RecvWindow        time.Duration
	Timeout           time.Duration
	OrdersPerSecond   float64
	RequestsPerMinute int
}

// LogConfig 日志参数
type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

// Config 应用配置（进程入口构造一次）
type Config struct {
	Quote        domain.QuoteConfig
	DryRun       bool
	Credentials  Credentials
	Binance      BinanceConfig
	Log          LogConfig
	StatusListen string // 为空则不启动状态服务
	JournalPath  string // 为空则不写审计日志
}

// LoadOptions 加载选项
type LoadOptions struct {
	// EnvFile .env 文件；不存在时忽略
	EnvFile string
	// SecretKey badger 加密 key（32 bytes hex/base64），为空时读取 LADDER_SECRET_KEY
	SecretKey string
	// DryRun 为 true 时强制 dry_run，优先于配置文件和环境变量（命令行 -dry-run）
	DryRun bool
}

// Load 按 配置文件 -> .env/环境变量覆盖 -> 凭证 的顺序构造配置并校验
func Load(path string, opts LoadOptions) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("加载 %s 失败: %w", opts.EnvFile, err)
		}
	}

	fc := &ConfigFile{}
	if path != "" {
		var err error
		fc, err = loadConfigFile(path)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", path, err)
		}
	}
	if err := applyEnv(fc); err != nil {
		return nil, err
	}
	if opts.DryRun {
		fc.DryRun = true
	}

	cfg, err := build(fc)
	if err != nil {
		return nil, err
	}

	secretKey := opts.SecretKey
	if secretKey == "" {
		secretKey = os.Getenv(envPrefix + "SECRET_KEY")
	}
	cfg.Credentials, err = loadCredentials(fc.Secrets.Path, fc.Secrets.Prefix, secretKey)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadConfigFile(filePath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var fc ConfigFile
	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return nil, fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}
	return &fc, nil
}

// applyEnv LADDER_* 环境变量覆盖配置文件
func applyEnv(fc *ConfigFile) error {
	setString(&fc.Exchange, "EXCHANGE")
	setString(&fc.Symbol, "SYMBOL")
	setString(&fc.Mode, "MODE")
	setString(&fc.Side, "SIDE")
	setString(&fc.PricePolicy, "PRICE_POLICY")
	setString(&fc.StartupOrders, "STARTUP_ORDERS")
	setString(&fc.Log.Level, "LOG_LEVEL")
	setString(&fc.Log.File, "LOG_FILE")
	setString(&fc.StatusListen, "STATUS_LISTEN")
	setString(&fc.JournalPath, "JOURNAL_PATH")
	setString(&fc.Secrets.Path, "SECRET_DB")
	setString(&fc.Binance.BaseURL, "BINANCE_BASE_URL")

	var errs []error
	errs = append(errs,
		setFloat(&fc.TotalQuoteAmount, "TOTAL_QUOTE_AMOUNT"),
		setFloat(&fc.BidQuoteAmount, "BID_QUOTE_AMOUNT"),
		setFloat(&fc.AskQuoteAmount, "ASK_QUOTE_AMOUNT"),
		setFloat(&fc.SpreadPercent, "SPREAD_PERCENT"),
		setFloat(&fc.DriftThresholdPercent, "DRIFT_THRESHOLD_PERCENT"),
		setInt(&fc.NumberOfOrders, "NUMBER_OF_ORDERS"),
		setInt(&fc.HeartbeatEvery, "HEARTBEAT_EVERY"),
		setDuration(&fc.TickInterval, "TICK_INTERVAL"),
		setDuration(&fc.InterOrderDelay, "INTER_ORDER_DELAY"),
		setDuration(&fc.RateLimitBackoff, "RATE_LIMIT_BACKOFF"),
		setDuration(&fc.CancelSettleDelay, "CANCEL_SETTLE_DELAY"),
		setDuration(&fc.ShutdownTimeout, "SHUTDOWN_TIMEOUT"),
		setBool(&fc.DryRun, "DRY_RUN"),
		setBool(&fc.RefreshOnPartialFill, "REFRESH_ON_PARTIAL_FILL"),
		setBool(&fc.SymbolWideCancel, "SYMBOL_WIDE_CANCEL"),
	)
	return errors.Join(errs...)
}

func build(fc *ConfigFile) (*Config, error) {
	symbol, err := domain.ParseSymbol(fc.Symbol)
	if err != nil {
		return nil, err
	}
	mode := domain.ModeMono
	if fc.Mode != "" {
		if mode, err = domain.ParseMode(fc.Mode); err != nil {
			return nil, err
		}
	}
	var side domain.Side
	if fc.Side != "" {
		if side, err = domain.ParseSide(fc.Side); err != nil {
			return nil, err
		}
	}
	policy := domain.PolicyBest
	if fc.PricePolicy != "" {
		if policy, err = domain.ParsePricePolicy(fc.PricePolicy); err != nil {
			return nil, err
		}
	}

	budgets := map[domain.Side]float64{domain.Bid: fc.TotalQuoteAmount, domain.Ask: fc.TotalQuoteAmount}
	if fc.BidQuoteAmount > 0 {
		budgets[domain.Bid] = fc.BidQuoteAmount
	}
	if fc.AskQuoteAmount > 0 {
		budgets[domain.Ask] = fc.AskQuoteAmount
	}

	exchange := strings.ToLower(strings.TrimSpace(fc.Exchange))
	if exchange == "" {
		exchange = "binance"
	}

	cfg := &Config{
		Quote: domain.QuoteConfig{
			Exchange:              exchange,
			Symbol:                symbol,
			Mode:                  mode,
			Side:                  side,
			Budgets:               budgets,
			SpreadPercent:         fc.SpreadPercent,
			OrdersPerSide:         fc.NumberOfOrders,
			PricePolicy:           policy,
			DriftThresholdPercent: fc.DriftThresholdPercent,
			TickInterval:          fc.TickInterval.Duration,
			InterOrderDelay:       fc.InterOrderDelay.Duration,
			RateLimitBackoff:      fc.RateLimitBackoff.Duration,
			CancelSettleDelay:     fc.CancelSettleDelay.Duration,
			HeartbeatEvery:        fc.HeartbeatEvery,
			ShutdownTimeout:       fc.ShutdownTimeout.Duration,
			StartupOrders:         domain.StartupPolicy(strings.ToLower(strings.TrimSpace(fc.StartupOrders))),
			RefreshOnPartialFill:  fc.RefreshOnPartialFill,
			SymbolWideCancel:      fc.SymbolWideCancel,
		},
		DryRun: fc.DryRun,
		Binance: BinanceConfig{
			BaseURL:           fc.Binance.BaseURL,
			RecvWindow:        fc.Binance.RecvWindow.Duration,
			Timeout:           fc.Binance.Timeout.Duration,
			OrdersPerSecond:   fc.Binance.OrdersPerSecond,
			RequestsPerMinute: fc.Binance.RequestsPerMinute,
		},
		Log: LogConfig{
			Level:      fc.Log.Level,
			Format:     fc.Log.Format,
			File:       fc.Log.File,
			MaxSize:    fc.Log.MaxSize,
			MaxBackups: fc.Log.MaxBackups,
			MaxAge:     fc.Log.MaxAge,
			Compress:   fc.Log.Compress,
		},
		StatusListen: fc.StatusListen,
		JournalPath:  fc.JournalPath,
	}
	return cfg, nil
}

// loadCredentials 环境变量优先；缺失时从 badger secret store 读取
func loadCredentials(dbPath, prefix, rawKey string) (Credentials, error) {
	creds := Credentials{
		APIKey:    strings.TrimSpace(os.Getenv(KeyAPIKey)),
		APISecret: strings.TrimSpace(os.Getenv(KeyAPISecret)),
	}
	if (creds.APIKey != "" && creds.APISecret != "") || dbPath == "" {
		return creds, nil
	}
	if prefix == "" {
		prefix = "env/"
	}

	key, err := secretstore.ParseKey(rawKey)
	if err != nil {
		return creds, fmt.Errorf("secret key 无效: %w", err)
	}
	if key == nil {
		return creds, fmt.Errorf("已配置 secret store %s 但缺少 %sSECRET_KEY", dbPath, envPrefix)
	}
	ss, err := secretstore.Open(secretstore.OpenOptions{Path: dbPath, EncryptionKey: key, ReadOnly: true})
	if err != nil {
		return creds, err
	}
	defer ss.Close()

	for _, item := range []struct {
		dst *string
		key string
	}{{&creds.APIKey, KeyAPIKey}, {&creds.APISecret, KeyAPISecret}} {
		if *item.dst != "" {
			continue
		}
		v, _, err := ss.GetString(prefix + item.key)
		if err != nil {
			return creds, fmt.Errorf("读取 %s 失败: %w", item.key, err)
		}
		*item.dst = strings.TrimSpace(v)
	}
	return creds, nil
}

// Validate 验证配置（同时填充 QuoteConfig 默认值）
func (c *Config) Validate() error {
	if err := c.Quote.Validate(); err != nil {
		return err
	}
	if c.Quote.Exchange == "binance" && !c.DryRun {
		if c.Credentials.APIKey == "" || c.Credentials.APISecret == "" {
			return fmt.Errorf("%s/%s 未配置（环境变量或 secret store）", KeyAPIKey, KeyAPISecret)
		}
	}
	return nil
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func setString(dst *string, key string) {
	if v, ok := lookupEnv(key); ok {
		*dst = v
	}
}

func setFloat(dst *float64, key string) error {
	v, ok := lookupEnv(key)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s%s=%q 不是数字", envPrefix, key, v)
	}
	*dst = f
	return nil
}

func setInt(dst *int, key string) error {
	v, ok := lookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s%s=%q 不是整数", envPrefix, key, v)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v, ok := lookupEnv(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s%s=%q 不是布尔值", envPrefix, key, v)
	}
	*dst = b
	return nil
}

func setDuration(dst *Duration, key string) error {
	v, ok := lookupEnv(key)
	if !ok {
		return nil
	}
	if err := dst.parse(v); err != nil {
		return fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return nil
}
