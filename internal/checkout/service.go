package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/datanexus/internal/common"
	"github.com/noah-isme/datanexus/internal/lock"
	"github.com/noah-isme/datanexus/internal/market"
	"github.com/noah-isme/datanexus/internal/obs"
	"github.com/noah-isme/datanexus/internal/settlement"
)

// Line statuses reported in a Summary.
const (
	StatusPurchased   = "purchased"
	StatusNoInventory = "no_inventory"
	StatusFailed      = "failed"
)

// Purchaser settles one category.
type Purchaser interface {
	Purchase(ctx context.Context, category string, agency market.AgencyID) (settlement.Outcome, error)
}

// Carts is the subset of the cart service used by checkout.
type Carts interface {
	Get(ctx context.Context, agency market.AgencyID) (market.Cart, error)
	RemoveCategories(ctx context.Context, agency market.AgencyID, categories ...string) (market.Cart, error)
}

// LineResult is the outcome of one cart line.
type LineResult struct {
	LineID         string            `json:"lineId"`
	Category       string            `json:"category"`
	Status         string            `json:"status"`
	PurchasedCount int               `json:"purchasedCount"`
	TotalCost      float64           `json:"totalCost"`
	Note           string            `json:"note"`
	ErrorCode      string            `json:"errorCode,omitempty"`
	Items          []settlement.Item `json:"items,omitempty"`
}

// Summary aggregates a checkout across all cart lines.
type Summary struct {
	TotalPurchased   int          `json:"totalPurchased"`
	TotalCost        float64      `json:"totalCost"`
	Lines            []LineResult `json:"lines"`
	NoInventory      []string     `json:"noInventory"`
	Failed           []string     `json:"failed"`
	Note             string       `json:"note"`
	CartUpdateFailed bool         `json:"cartUpdateFailed,omitempty"`
}

// Service fans cart lines out into settlements.
type Service struct {
	Carts   Carts
	Settle  Purchaser
	Lock    lock.Guard
	LockTTL time.Duration
	Logger  *zerolog.Logger
}

func (s *Service) logger() *zerolog.Logger {
	if s != nil && s.Logger != nil {
		return s.Logger
	}
	nop := zerolog.Nop()
	return &nop
}

// Checkout settles every line of the agency cart sequentially. A line that
// fails or finds no inventory never stops the others. Lines that bought at
// least one item are removed from the cart; the rest stay for a later attempt.
func (s *Service) Checkout(ctx context.Context, agency market.AgencyID) (Summary, error) {
	if s == nil || s.Carts == nil || s.Settle == nil {
		return Summary{}, errors.New("checkout service not configured")
	}
	if agency.IsZero() {
		return Summary{}, fmt.Errorf("agency is required: %w", market.ErrInvalidInput)
	}
	if s.Lock == nil {
		return s.run(ctx, agency)
	}
	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	var summary Summary
	err := s.Lock.WithLock(ctx, lock.CheckoutKey(agency.String()), ttl, func(ctx context.Context) error {
		var runErr error
		summary, runErr = s.run(ctx, agency)
		return runErr
	})
	return summary, err
}

func (s *Service) run(ctx context.Context, agency market.AgencyID) (Summary, error) {
	ctx, span := otel.Tracer("datanexus/checkout").Start(ctx, "checkout.run")
	defer span.End()

	c, err := s.Carts.Get(ctx, agency)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{Lines: make([]LineResult, 0, len(c.Lines)), NoInventory: []string{}, Failed: []string{}}
	total := decimal.Zero
	purchased := make([]string, 0, len(c.Lines))

	for _, line := range c.Lines {
		result := LineResult{LineID: line.ID, Category: line.Category}
		outcome, err := s.Settle.Purchase(ctx, line.Category, agency)
		switch {
		case err != nil:
			result.Status = StatusFailed
			result.ErrorCode = common.ToAppError(err).Code
			result.Note = fmt.Sprintf("settlement of %s failed", line.Category)
			summary.Failed = append(summary.Failed, line.Category)
			s.logger().Warn().Err(err).Str("agency_id", agency.String()).Str("category", line.Category).Msg("checkout_line_failed")
		case outcome.NoInventory:
			result.Status = StatusNoInventory
			result.Note = outcome.Note
			summary.NoInventory = append(summary.NoInventory, line.Category)
		default:
			result.Status = StatusPurchased
			result.PurchasedCount = outcome.PurchasedCount
			result.TotalCost = outcome.TotalCost
			result.Note = outcome.Note
			result.Items = outcome.Items
			summary.TotalPurchased += outcome.PurchasedCount
			total = total.Add(decimal.NewFromFloat(outcome.TotalCost))
			purchased = append(purchased, line.Category)
		}
		obs.ObserveCheckoutLine(result.Status)
		summary.Lines = append(summary.Lines, result)
	}
	summary.TotalCost = total.InexactFloat64()
	summary.Note = describe(summary)

	if len(purchased) > 0 {
		if _, err := s.Carts.RemoveCategories(ctx, agency, purchased...); err != nil {
			summary.CartUpdateFailed = true
			s.logger().Error().Err(err).Str("agency_id", agency.String()).Strs("categories", purchased).Msg("checkout_cart_update_failed")
		}
	}
	span.SetAttributes(
		attribute.Int("checkout.lines", len(c.Lines)),
		attribute.Int("checkout.purchased", summary.TotalPurchased),
		attribute.Int("checkout.no_inventory", len(summary.NoInventory)),
		attribute.Int("checkout.failed", len(summary.Failed)),
	)
	s.logger().Info().
		Str("agency_id", agency.String()).
		Int("lines", len(c.Lines)).
		Int("purchased", summary.TotalPurchased).
		Float64("total_cost", summary.TotalCost).
		Msg("checkout_completed")
	return summary, nil
}

func describe(s Summary) string {
	if len(s.Lines) == 0 {
		return "cart is empty"
	}
	parts := []string{fmt.Sprintf("purchased %d item(s)", s.TotalPurchased)}
	if len(s.NoInventory) > 0 {
		parts = append(parts, "no inventory for "+strings.Join(s.NoInventory, ", "))
	}
	if len(s.Failed) > 0 {
		parts = append(parts, "failed: "+strings.Join(s.Failed, ", "))
	}
	return strings.Join(parts, "; ")
}
