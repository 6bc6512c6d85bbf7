package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/betbot/ladderquote/internal/domain"
	"github.com/betbot/ladderquote/pkg/ratelimit"
)

const DefaultBaseURL = "https://api.binance.com"

// Config REST 客户端配置
type Config struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	RecvWindow time.Duration
	Timeout    time.Duration

	// OrdersPerSecond 下单/撤单端点的令牌桶速率
	OrdersPerSecond float64
	// RequestsPerMinute 全局请求数上限
	RequestsPerMinute int
}

func (c *Config) setDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if c.RecvWindow <= 0 {
		c.RecvWindow = 5 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.OrdersPerSecond <= 0 {
		c.OrdersPerSecond = 5
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = 600
	}
}

// apiError 交易所错误体：{"code":-2011,"msg":"Unknown order sent."}
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

const (
	codeTooManyRequests    = -1003
	codeFilterFailure      = -1013
	codeNewOrderRejected   = -2010
	codeCancelRejected     = -2011
	endpointOrder          = "order"
	msgInsufficientBalance = "insufficient balance"
	msgUnknownOrder        = "unknown order"
	msgOrderDoesNotExist   = "does not exist"
)

type restClient struct {
	cfg     Config
	http    *resty.Client
	limiter *ratelimit.Manager
	now     func() time.Time
}

func newRestClient(cfg Config) *restClient {
	cfg.setDefaults()
	hc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "ladderquote")
	if cfg.APIKey != "" {
		hc.SetHeader("X-MBX-APIKEY", cfg.APIKey)
	}

	limiter := ratelimit.NewManager(ratelimit.NewSlidingWindow(cfg.RequestsPerMinute, time.Minute))
	burst := int(cfg.OrdersPerSecond)
	if burst < 1 {
		burst = 1
	}
	limiter.Register(endpointOrder, ratelimit.NewTokenBucket(burst, cfg.OrdersPerSecond))

	return &restClient{cfg: cfg, http: hc, limiter: limiter, now: time.Now}
}

// sign 追加 timestamp/recvWindow 并做 HMAC-SHA256 签名，返回完整 query string
func (c *restClient) sign(params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow.Milliseconds(), 10))
	qs := params.Encode()
	mac := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	mac.Write([]byte(qs))
	return qs + "&signature=" + hex.EncodeToString(mac.Sum(nil))
}

// do 执行请求。limitKey 为限速分组（空串只走全局限速）。
// 非 2xx 响应统一经 classify 映射到领域错误。
func (c *restClient) do(ctx context.Context, method, path, limitKey string, params url.Values, signed bool, out any) error {
	if err := c.limiter.Wait(ctx, limitKey); err != nil {
		return errors.Wrap(err, "rate limiter")
	}

	qs := ""
	if signed {
		if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
			return errors.Errorf("binance %s %s 需要 API key/secret", method, path)
		}
		qs = c.sign(params)
	} else if params != nil {
		qs = params.Encode()
	}

	// 签名覆盖的是 query 原文，必须原样上线：不能经 SetQueryString 重新排序编码
	target := path
	if qs != "" {
		target += "?" + qs
	}

	var apiErr apiError
	req := c.http.R().SetContext(ctx).SetError(&apiErr)
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Execute(method, target)
	if err != nil {
		return errors.Wrapf(err, "binance %s %s", method, path)
	}
	if resp.IsError() {
		return classify(method, path, resp.StatusCode(), apiErr)
	}
	return nil
}

func classify(method, path string, status int, e apiError) error {
	msg := strings.ToLower(e.Msg)
	ctx := func(base error) error {
		return errors.Wrapf(base, "binance %s %s: status=%d code=%d msg=%s", method, path, status, e.Code, e.Msg)
	}
	switch {
	case status == http.StatusTooManyRequests || status == http.StatusTeapot || e.Code == codeTooManyRequests:
		return ctx(domain.ErrRateLimited)
	case e.Code == codeCancelRejected && (strings.Contains(msg, msgUnknownOrder) || strings.Contains(msg, msgOrderDoesNotExist)):
		return ctx(domain.ErrAlreadyGone)
	case e.Code == codeCancelRejected:
		return ctx(domain.ErrCancel)
	case e.Code == codeNewOrderRejected && strings.Contains(msg, msgInsufficientBalance):
		return ctx(domain.ErrInsufficientBalance)
	case e.Code == codeFilterFailure:
		return ctx(domain.ErrBelowMinimum)
	case e.Code == codeNewOrderRejected:
		return ctx(domain.ErrPlacement)
	}
	return errors.Errorf("binance %s %s: status=%d code=%d msg=%s", method, path, status, e.Code, e.Msg)
}
