package config

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/betbot/ladderquote/internal/domain"
	"github.com/betbot/ladderquote/pkg/secretstore"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func clearCredentialEnv(t *testing.T) {
	t.Setenv(KeyAPIKey, "")
	t.Setenv(KeyAPISecret, "")
	t.Setenv(envPrefix+"SECRET_KEY", "")
	t.Setenv(envPrefix+"SECRET_DB", "")
}

const paperYAML = `
exchange: paper
symbol: btc/usdt
mode: mono
side: ask
total_quote_amount: 100
spread_percent: 10
number_of_orders: 5
price_policy: mid
tick_interval: 2s
inter_order_delay: 0.25
rate_limit_backoff: "3"
startup_orders: cancel
log:
  level: debug
  format: json
`

func TestLoad_YAML(t *testing.T) {
	clearCredentialEnv(t)
	cfg, err := Load(writeFile(t, "ladder.yaml", paperYAML), LoadOptions{})
	require.NoError(t, err)

	q := cfg.Quote
	assert.Equal(t, "paper", q.Exchange)
	assert.Equal(t, domain.Symbol{Base: "BTC", Quote: "USDT"}, q.Symbol)
	assert.Equal(t, domain.ModeMono, q.Mode)
	assert.Equal(t, domain.Ask, q.Side)
	assert.Equal(t, 100.0, q.Budget(domain.Ask))
	assert.Equal(t, domain.PolicyMid, q.PricePolicy)
	assert.Equal(t, 2*time.Second, q.TickInterval)
	assert.Equal(t, 250*time.Millisecond, q.InterOrderDelay)
	assert.Equal(t, 3*time.Second, q.RateLimitBackoff)
	assert.Equal(t, domain.StartupCancel, q.StartupOrders)
	// 未配置时漂移阈值默认等于点差
	assert.Equal(t, 10.0, q.DriftThresholdPercent)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_JSONWithPerSideBudgets(t *testing.T) {
	clearCredentialEnv(t)
	p := writeFile(t, "ladder.json", `{
		"exchange": "paper",
		"symbol": "ETH-USDT",
		"mode": "both",
		"total_quote_amount": 50,
		"bid_quote_amount": 80,
		"spread_percent": 4,
		"number_of_orders": 3,
		"tick_interval": 1.5
	}`)
	cfg, err := Load(p, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 80.0, cfg.Quote.Budget(domain.Bid))
	assert.Equal(t, 50.0, cfg.Quote.Budget(domain.Ask))
	assert.Equal(t, 1500*time.Millisecond, cfg.Quote.TickInterval)
	assert.Equal(t, []domain.Side{domain.Bid, domain.Ask}, cfg.Quote.Sides())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv(envPrefix+"SPREAD_PERCENT", "6")
	t.Setenv(envPrefix+"NUMBER_OF_ORDERS", "8")
	t.Setenv(envPrefix+"TICK_INTERVAL", "500ms")
	t.Setenv(envPrefix+"SIDE", "bid")
	t.Setenv(envPrefix+"DRY_RUN", "true")

	cfg, err := Load(writeFile(t, "ladder.yml", paperYAML), LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 6.0, cfg.Quote.SpreadPercent)
	assert.Equal(t, 8, cfg.Quote.OrdersPerSide)
	assert.Equal(t, 500*time.Millisecond, cfg.Quote.TickInterval)
	assert.Equal(t, domain.Bid, cfg.Quote.Side)
	assert.True(t, cfg.DryRun)
}

func TestLoad_DotEnvFile(t *testing.T) {
	clearCredentialEnv(t)
	// t.Setenv 负责恢复；godotenv 不覆盖已存在的变量，所以先删掉
	t.Setenv(envPrefix+"SYMBOL", "")
	os.Unsetenv(envPrefix + "SYMBOL")
	envFile := writeFile(t, ".env", "LADDER_SYMBOL=SOL/USDT\n")

	cfg, err := Load(writeFile(t, "ladder.yaml", paperYAML), LoadOptions{EnvFile: envFile})
	require.NoError(t, err)
	assert.Equal(t, "SOL", cfg.Quote.Symbol.Base)

	_, err = Load(writeFile(t, "ladder.yaml", paperYAML), LoadOptions{EnvFile: filepath.Join(t.TempDir(), "missing.env")})
	assert.NoError(t, err)
}

func TestLoad_InvalidEnvValue(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv(envPrefix+"NUMBER_OF_ORDERS", "many")
	_, err := Load(writeFile(t, "ladder.yaml", paperYAML), LoadOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NUMBER_OF_ORDERS")
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	clearCredentialEnv(t)
	_, err := Load(writeFile(t, "ladder.toml", "symbol = 1"), LoadOptions{})
	assert.Error(t, err)
}

func TestLoad_BinanceRequiresCredentials(t *testing.T) {
	clearCredentialEnv(t)
	p := writeFile(t, "ladder.yaml", `
symbol: BTC/USDT
side: ask
total_quote_amount: 100
spread_percent: 10
number_of_orders: 5
`)
	_, err := Load(p, LoadOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), KeyAPIKey)

	t.Setenv(KeyAPIKey, "k")
	t.Setenv(KeyAPISecret, "s")
	cfg, err := Load(p, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "binance", cfg.Quote.Exchange)
	assert.Equal(t, Credentials{APIKey: "k", APISecret: "s"}, cfg.Credentials)
}

func TestLoad_DryRunOptionOverridesEnv(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv(envPrefix+"DRY_RUN", "false")
	p := writeFile(t, "ladder.yaml", `
symbol: BTC/USDT
side: ask
total_quote_amount: 100
spread_percent: 10
number_of_orders: 5
dry_run: false
`)
	cfg, err := Load(p, LoadOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, "binance", cfg.Quote.Exchange)
	assert.Empty(t, cfg.Credentials.APIKey)
	assert.Equal(t, "false", os.Getenv(envPrefix+"DRY_RUN"))
}

func TestLoad_CredentialsFromSecretStore(t *testing.T) {
	clearCredentialEnv(t)
	rawKey := hex.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	key, err := secretstore.ParseKey(rawKey)
	require.NoError(t, err)

	dbPath := filepath.Join(t.TempDir(), "secrets")
	ss, err := secretstore.Open(secretstore.OpenOptions{Path: dbPath, EncryptionKey: key})
	require.NoError(t, err)
	require.NoError(t, ss.SetMany(map[string]string{
		"env/" + KeyAPIKey:    "from-store",
		"env/" + KeyAPISecret: "secret-from-store",
	}))
	require.NoError(t, ss.Close())

	t.Setenv(envPrefix+"SECRET_DB", dbPath)
	p := writeFile(t, "ladder.yaml", `
symbol: BTC/USDT
side: bid
total_quote_amount: 100
spread_percent: 10
number_of_orders: 5
`)
	_, err = Load(p, LoadOptions{})
	require.Error(t, err, "缺少 secret key 时应失败")

	cfg, err := Load(p, LoadOptions{SecretKey: rawKey})
	require.NoError(t, err)
	assert.Equal(t, "from-store", cfg.Credentials.APIKey)
	assert.Equal(t, "secret-from-store", cfg.Credentials.APISecret)
}

func TestDuration_YAML(t *testing.T) {
	var v struct {
		A Duration `yaml:"a"`
		B Duration `yaml:"b"`
		C Duration `yaml:"c"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("a: 1m\nb: 2\nc: 0.5\n"), &v))
	assert.Equal(t, time.Minute, v.A.Duration)
	assert.Equal(t, 2*time.Second, v.B.Duration)
	assert.Equal(t, 500*time.Millisecond, v.C.Duration)

	assert.Error(t, yaml.Unmarshal([]byte("a: soon\n"), &v))
}
