// Package binance 币安现货 REST 适配器（实现 ports.Exchange）。
package binance

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/betbot/ladderquote/internal/domain"
	"github.com/betbot/ladderquote/internal/ports"
)

var log = logrus.WithField("component", "binance")

// Exchange 币安现货
type Exchange struct {
	rest *restClient
}

var _ ports.Exchange = (*Exchange)(nil)
var _ ports.SymbolCanceller = (*Exchange)(nil)

// New 创建适配器
func New(cfg Config) *Exchange {
	return &Exchange{rest: newRestClient(cfg)}
}

func (e *Exchange) Name() string { return "binance" }

// FormatSymbol BTC/USDT -> BTCUSDT
func FormatSymbol(s domain.Symbol) string { return s.Base + s.Quote }

func symbolParams(s domain.Symbol) url.Values {
	v := url.Values{}
	v.Set("symbol", FormatSymbol(s))
	return v
}

type bookTicker struct {
	BidPrice string `json:"bidPrice"`
	AskPrice string `json:"askPrice"`
}

type tickerPrice struct {
	Price string `json:"price"`
}

// GetReferenceQuote 并发读取 bookTicker 与最新成交价
func (e *Exchange) GetReferenceQuote(ctx context.Context, symbol domain.Symbol) (domain.ReferenceQuote, error) {
	var (
		book bookTicker
		last tickerPrice
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.rest.do(gctx, http.MethodGet, "/api/v3/ticker/bookTicker", "", symbolParams(symbol), false, &book)
	})
	g.Go(func() error {
		return e.rest.do(gctx, http.MethodGet, "/api/v3/ticker/price", "", symbolParams(symbol), false, &last)
	})
	if err := g.Wait(); err != nil {
		return domain.ReferenceQuote{}, err
	}
	return domain.ReferenceQuote{
		Bid:  parseFloat(book.BidPrice),
		Ask:  parseFloat(book.AskPrice),
		Last: parseFloat(last.Price),
	}, nil
}

type openOrder struct {
	OrderID     int64  `json:"orderId"`
	Price       string `json:"price"`
	OrigQty     string `json:"origQty"`
	ExecutedQty string `json:"executedQty"`
	Side        string `json:"side"`
}

func (e *Exchange) GetOpenOrders(ctx context.Context, symbol domain.Symbol) ([]domain.OrderSnapshot, error) {
	var raw []openOrder
	if err := e.rest.do(ctx, http.MethodGet, "/api/v3/openOrders", "", symbolParams(symbol), true, &raw); err != nil {
		return nil, err
	}
	out := make([]domain.OrderSnapshot, 0, len(raw))
	for _, o := range raw {
		side, err := domain.SideFromOrderSide(domain.OrderSide(o.Side))
		if err != nil {
			log.Warnf("跳过无法识别方向的挂单: id=%d side=%q", o.OrderID, o.Side)
			continue
		}
		orig := parseDecimal(o.OrigQty)
		out = append(out, domain.OrderSnapshot{
			ID:     strconv.FormatInt(o.OrderID, 10),
			Side:   side,
			Price:  parseDecimal(o.Price),
			Amount: orig.Sub(parseDecimal(o.ExecutedQty)),
		})
	}
	return out, nil
}

type newOrderResp struct {
	OrderID int64 `json:"orderId"`
}

func (e *Exchange) PlaceLimitOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	if !req.Side.Valid() {
		return "", errors.Wrapf(domain.ErrPlacement, "invalid side %v", req.Side)
	}
	p := symbolParams(req.Symbol)
	p.Set("side", strings.ToUpper(string(req.Side.OrderSide())))
	p.Set("type", "LIMIT")
	p.Set("timeInForce", "GTC")
	p.Set("price", req.Price.String())
	p.Set("quantity", req.Amount.String())
	if req.ClientOrderID != "" {
		p.Set("newClientOrderId", req.ClientOrderID)
	}

	var resp newOrderResp
	if err := e.rest.do(ctx, http.MethodPost, "/api/v3/order", endpointOrder, p, true, &resp); err != nil {
		if !errors.Is(err, domain.ErrPlacement) {
			return "", errors.Wrap(domain.ErrPlacement, err.Error())
		}
		return "", err
	}
	return strconv.FormatInt(resp.OrderID, 10), nil
}

func (e *Exchange) CancelOrder(ctx context.Context, symbol domain.Symbol, orderID string) error {
	p := symbolParams(symbol)
	p.Set("orderId", orderID)
	err := e.rest.do(ctx, http.MethodDelete, "/api/v3/order", endpointOrder, p, true, nil)
	if err != nil && !domain.IsAlreadyGone(err) && !errors.Is(err, domain.ErrCancel) {
		return errors.Wrap(domain.ErrCancel, err.Error())
	}
	return err
}

// CancelAllOrders 撤掉该 symbol 下全部挂单；没有挂单时交易所返回 -2011，视为成功
func (e *Exchange) CancelAllOrders(ctx context.Context, symbol domain.Symbol) error {
	err := e.rest.do(ctx, http.MethodDelete, "/api/v3/openOrders", endpointOrder, symbolParams(symbol), true, nil)
	if domain.IsAlreadyGone(err) {
		return nil
	}
	return err
}

type exchangeInfo struct {
	Symbols []struct {
		Symbol  string   `json:"symbol"`
		Filters []filter `json:"filters"`
	} `json:"symbols"`
}

type filter struct {
	FilterType  string `json:"filterType"`
	MinPrice    string `json:"minPrice"`
	TickSize    string `json:"tickSize"`
	MinQty      string `json:"minQty"`
	StepSize    string `json:"stepSize"`
	MinNotional string `json:"minNotional"`
}

func (e *Exchange) GetMarketConstraints(ctx context.Context, symbol domain.Symbol) (domain.MarketConstraints, error) {
	var info exchangeInfo
	if err := e.rest.do(ctx, http.MethodGet, "/api/v3/exchangeInfo", "", symbolParams(symbol), false, &info); err != nil {
		return domain.MarketConstraints{}, err
	}
	want := FormatSymbol(symbol)
	for _, s := range info.Symbols {
		if s.Symbol != want {
			continue
		}
		var c domain.MarketConstraints
		for _, f := range s.Filters {
			switch f.FilterType {
			case "PRICE_FILTER":
				c.PriceTick = parseDecimal(f.TickSize)
				c.MinPrice = parseDecimal(f.MinPrice)
			case "LOT_SIZE":
				c.AmountTick = parseDecimal(f.StepSize)
				c.MinAmount = parseDecimal(f.MinQty)
			case "NOTIONAL", "MIN_NOTIONAL":
				c.MinNotional = parseDecimal(f.MinNotional)
			}
		}
		if err := c.Validate(); err != nil {
			return domain.MarketConstraints{}, errors.Wrapf(err, "%s 精度约束不完整", want)
		}
		return c, nil
	}
	return domain.MarketConstraints{}, errors.Errorf("exchangeInfo 中找不到 %s", want)
}

type account struct {
	Balances []struct {
		Asset string `json:"asset"`
		Free  string `json:"free"`
	} `json:"balances"`
}

func (e *Exchange) GetAvailableBalance(ctx context.Context, currency string) (decimal.Decimal, error) {
	var acc account
	if err := e.rest.do(ctx, http.MethodGet, "/api/v3/account", "", nil, true, &acc); err != nil {
		return decimal.Zero, err
	}
	for _, b := range acc.Balances {
		if strings.EqualFold(b.Asset, currency) {
			return parseDecimal(b.Free), nil
		}
	}
	return decimal.Zero, nil
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseFloat(s string) float64 { return parseDecimal(s).InexactFloat64() }
