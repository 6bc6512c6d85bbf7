package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/betbot/ladderquote/internal/domain"
)

// Small capability interfaces for the exchange collaborator.
// Every call is a synchronous request/response; timeouts are the adapter's business.

type QuoteSource interface {
	// GetReferenceQuote returns best bid / best ask / last trade; 0 means unavailable.
	GetReferenceQuote(ctx context.Context, symbol domain.Symbol) (domain.ReferenceQuote, error)
}

type OpenOrdersGetter interface {
	GetOpenOrders(ctx context.Context, symbol domain.Symbol) ([]domain.OrderSnapshot, error)
}

type OrderPlacer interface {
	// PlaceLimitOrder returns the exchange-assigned order id.
	// Failures wrap domain.ErrPlacement (ErrRateLimited / ErrInsufficientBalance / ErrBelowMinimum).
	PlaceLimitOrder(ctx context.Context, req domain.OrderRequest) (string, error)
}

type OrderCanceler interface {
	// CancelOrder fails with domain.ErrAlreadyGone when the order is already filled/cancelled.
	CancelOrder(ctx context.Context, symbol domain.Symbol, orderID string) error
}

// SymbolCanceller is optional; adapters without a batch endpoint simply don't implement it.
type SymbolCanceller interface {
	CancelAllOrders(ctx context.Context, symbol domain.Symbol) error
}

type ConstraintsGetter interface {
	GetMarketConstraints(ctx context.Context, symbol domain.Symbol) (domain.MarketConstraints, error)
}

type BalanceGetter interface {
	GetAvailableBalance(ctx context.Context, currency string) (decimal.Decimal, error)
}

// Exchange is everything the reconciliation loop consumes.
type Exchange interface {
	Name() string
	QuoteSource
	OpenOrdersGetter
	OrderPlacer
	OrderCanceler
	ConstraintsGetter
	BalanceGetter
}
