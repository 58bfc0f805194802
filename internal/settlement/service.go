package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/noah-isme/datanexus/internal/events"
	"github.com/noah-isme/datanexus/internal/market"
	"github.com/noah-isme/datanexus/internal/obs"
	"github.com/noah-isme/datanexus/internal/pricing"
)

// Store is the persistence boundary used by settlements.
type Store interface {
	ListUnsoldByCategory(ctx context.Context, category string, now time.Time, limit int) ([]market.Submission, error)
	Reserve(ctx context.Context, r market.Reservation) error
	CommitSale(ctx context.Context, sale market.Sale) error
	Release(ctx context.Context, settlementID string, ids []string) error
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (events.Event, error)
}

// Config tunes settlement behaviour.
type Config struct {
	UnitPrice      float64
	BatchSize      int
	ReservationTTL time.Duration
	MaxAttempts    int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		UnitPrice:      pricing.DefaultUnitPrice,
		BatchSize:      DefaultBatchSize,
		ReservationTTL: 30 * time.Second,
		MaxAttempts:    3,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.UnitPrice <= 0 {
		c.UnitPrice = d.UnitPrice
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.ReservationTTL <= 0 {
		c.ReservationTTL = d.ReservationTTL
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	return c
}

// Item is one sold submission in an outcome.
type Item struct {
	SubmissionID string  `json:"submissionId"`
	OwnerID      string  `json:"ownerId"`
	QualityScore float64 `json:"qualityScore"`
	Payout       float64 `json:"payout"`
}

// Outcome summarises one settlement.
type Outcome struct {
	SettlementID   string    `json:"settlementId,omitempty"`
	Category       string    `json:"category"`
	PurchasedCount int       `json:"purchasedCount"`
	TotalCost      float64   `json:"totalCost"`
	EqualSplit     bool      `json:"equalSplit"`
	Items          []Item    `json:"items"`
	Note           string    `json:"note"`
	NoInventory    bool      `json:"noInventory"`
	SoldAt         time.Time `json:"soldAt,omitzero"`
}

// Service runs settlement transactions: select, reserve, allocate, commit.
type Service struct {
	Store  Store
	Events Emitter
	Config Config
	Logger *zerolog.Logger
	Now    func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) logger() *zerolog.Logger {
	if s != nil && s.Logger != nil {
		return s.Logger
	}
	nop := zerolog.Nop()
	return &nop
}

var (
	batchHistOnce sync.Once
	batchHist     metric.Int64Histogram
)

func batchSizeHistogram() metric.Int64Histogram {
	batchHistOnce.Do(func() {
		h, err := otel.Meter("datanexus/settlement").Int64Histogram("settlement.batch_size",
			metric.WithDescription("Number of submissions committed per settlement."))
		if err == nil {
			batchHist = h
		}
	})
	return batchHist
}

// Purchase settles one batch of category for agency. An empty category
// inventory yields an Outcome with NoInventory set and a nil error. Store
// faults are returned wrapped in market.ErrPersistence.
func (s *Service) Purchase(ctx context.Context, category string, agency market.AgencyID) (Outcome, error) {
	if s == nil || s.Store == nil {
		return Outcome{}, errors.New("settlement service not configured")
	}
	category, err := market.NormalizeCategory(category)
	if err != nil {
		return Outcome{}, err
	}
	if agency.IsZero() {
		return Outcome{}, fmt.Errorf("agency is required: %w", market.ErrInvalidInput)
	}
	cfg := s.Config.normalized()

	ctx, span := otel.Tracer("datanexus/settlement").Start(ctx, "settlement.purchase")
	defer span.End()
	span.SetAttributes(attribute.String("settlement.category", category), attribute.String("agency.id", agency.String()))

	start := time.Now()
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		outcome, retry, err := s.attempt(ctx, cfg, category, agency)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			obs.ObserveSettlement("error", category, 0, 0, obs.DurationMillis(time.Since(start)))
			s.logger().Error().Err(err).Str("category", category).Str("agency_id", agency.String()).Int("attempt", attempt).Msg("settlement_failed")
			return Outcome{}, err
		}
		if retry {
			obs.ObserveSettlementRetry()
			s.logger().Warn().Str("category", category).Int("attempt", attempt).Msg("settlement_reservation_lost")
			continue
		}
		result := "sold"
		if outcome.NoInventory {
			result = "no_inventory"
		}
		span.SetAttributes(attribute.Int("settlement.items", outcome.PurchasedCount), attribute.Int("settlement.attempts", attempt))
		obs.ObserveSettlement(result, category, outcome.PurchasedCount, outcome.TotalCost, obs.DurationMillis(time.Since(start)))
		return outcome, nil
	}
	// Every attempt lost its reservations to concurrent settlements.
	obs.ObserveSettlement("no_inventory", category, 0, 0, obs.DurationMillis(time.Since(start)))
	return noInventory(category, fmt.Sprintf("inventory for %s was claimed by concurrent purchases", category)), nil
}

// attempt runs one select/reserve/allocate/commit cycle. retry reports that
// the commit lost a reservation and the caller may start over.
func (s *Service) attempt(ctx context.Context, cfg Config, category string, agency market.AgencyID) (Outcome, bool, error) {
	now := s.now()
	candidates, err := s.Store.ListUnsoldByCategory(ctx, category, now, cfg.BatchSize)
	if err != nil {
		return Outcome{}, false, market.Persistence("list unsold", err)
	}
	batch := Select(category, candidates, cfg.BatchSize)
	if batch.NoInventory {
		return noInventory(category, ""), false, nil
	}

	settlementID := uuid.NewString()
	until := now.Add(cfg.ReservationTTL)
	reserved := make([]market.Submission, 0, len(batch.Items))
	for _, sub := range batch.Items {
		err := s.Store.Reserve(ctx, market.Reservation{SubmissionID: sub.ID, SettlementID: settlementID, Until: until, Now: now})
		if errors.Is(err, market.ErrAlreadyClaimed) {
			continue
		}
		if err != nil {
			s.release(ctx, settlementID, reserved)
			return Outcome{}, false, market.Persistence("reserve", err)
		}
		reserved = append(reserved, sub)
	}
	if len(reserved) == 0 {
		return Outcome{}, true, nil
	}

	claimed := Batch{Category: category, Items: reserved}
	alloc := pricing.Allocate(claimed.Scores(), cfg.UnitPrice)
	sale := market.Sale{SettlementID: settlementID, Agency: agency, Category: category, SoldAt: now, Items: make([]market.SaleItem, len(reserved))}
	items := make([]Item, len(reserved))
	for i, sub := range reserved {
		sale.Items[i] = market.SaleItem{SubmissionID: sub.ID, OwnerID: sub.OwnerID, Payout: alloc.Payouts[i]}
		items[i] = Item{SubmissionID: sub.ID, OwnerID: sub.OwnerID.String(), QualityScore: sub.QualityScore, Payout: alloc.Payouts[i]}
	}

	if err := s.Store.CommitSale(ctx, sale); err != nil {
		s.release(ctx, settlementID, reserved)
		if errors.Is(err, market.ErrAlreadyClaimed) {
			return Outcome{}, true, nil
		}
		return Outcome{}, false, market.Persistence("commit sale", err)
	}

	if hist := batchSizeHistogram(); hist != nil {
		hist.Record(ctx, int64(len(reserved)), metric.WithAttributes(attribute.String("category", category)))
	}
	outcome := Outcome{
		SettlementID:   settlementID,
		Category:       category,
		PurchasedCount: len(reserved),
		TotalCost:      alloc.Total,
		EqualSplit:     alloc.EqualSplit,
		Items:          items,
		Note:           fmt.Sprintf("purchased %d item(s) in %s", len(reserved), category),
		SoldAt:         now,
	}
	s.emit(ctx, outcome, agency)
	s.logger().Info().
		Str("settlement_id", settlementID).
		Str("category", category).
		Str("agency_id", agency.String()).
		Int("items", outcome.PurchasedCount).
		Float64("total_cost", outcome.TotalCost).
		Msg("settlement_committed")
	return outcome, false, nil
}

func (s *Service) release(ctx context.Context, settlementID string, subs []market.Submission) {
	if len(subs) == 0 {
		return
	}
	ids := make([]string, len(subs))
	for i, sub := range subs {
		ids[i] = sub.ID
	}
	// Reservations expire on their own; a failed release only delays resale.
	if err := s.Store.Release(context.WithoutCancel(ctx), settlementID, ids); err != nil {
		s.logger().Warn().Err(err).Str("settlement_id", settlementID).Msg("settlement_release_failed")
	}
}

func (s *Service) emit(ctx context.Context, outcome Outcome, agency market.AgencyID) {
	if s.Events == nil {
		return
	}
	payload := events.SettlementCompleted{
		SettlementID: outcome.SettlementID,
		AgencyID:     agency.String(),
		Category:     outcome.Category,
		SoldAt:       outcome.SoldAt,
		TotalCost:    outcome.TotalCost,
		Items:        make([]events.SoldItem, len(outcome.Items)),
	}
	for i, item := range outcome.Items {
		payload.Items[i] = events.SoldItem{SubmissionID: item.SubmissionID, OwnerID: item.OwnerID, Payout: item.Payout}
	}
	if _, err := s.Events.Emit(ctx, events.TopicSettlementCompleted, outcome.SettlementID, payload); err != nil {
		s.logger().Warn().Err(err).Str("settlement_id", outcome.SettlementID).Msg("settlement_event_failed")
	}
}

func noInventory(category, note string) Outcome {
	if note == "" {
		note = fmt.Sprintf("no unsold items in category %s", category)
	}
	return Outcome{Category: category, Items: []Item{}, Note: note, NoInventory: true}
}
