package earnings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/datanexus/internal/events"
	"github.com/noah-isme/datanexus/internal/market"
)

// Defaults for the contributor view.
const (
	DefaultContributorShare = 0.8
	DefaultWindowDays       = 30
	dayLayout               = "2006-01-02"
)

// Lister loads every submission of a contributor.
type Lister interface {
	ListByOwner(ctx context.Context, owner market.ContributorID) ([]market.Submission, error)
}

// Point is the net earnings of one UTC day.
type Point struct {
	Date string  `json:"date"`
	Net  float64 `json:"net"`
}

// Summary is the earnings view of one contributor.
type Summary struct {
	OwnerID          string  `json:"ownerId"`
	AsOf             string  `json:"asOf"`
	TotalSubmissions int     `json:"totalSubmissions"`
	SoldCount        int     `json:"soldCount"`
	UnsoldCount      int     `json:"unsoldCount"`
	GrossEarnings    float64 `json:"grossEarnings"`
	NetEarnings      float64 `json:"netEarnings"`
	ContributorShare float64 `json:"contributorShare"`
	AverageQuality   float64 `json:"averageQuality"`
	WindowNet        float64 `json:"windowNet"`
	Series           []Point `json:"series"`
}

// Service derives contributor earnings, cached per owner in Redis.
type Service struct {
	Store      Lister
	R          redis.Cmdable
	TTL        time.Duration
	Share      float64
	WindowDays int
	Now        func() time.Time
	Logger     *zerolog.Logger
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) share() float64 {
	if s == nil || s.Share <= 0 || s.Share > 1 {
		return DefaultContributorShare
	}
	return s.Share
}

func (s *Service) window() int {
	if s == nil || s.WindowDays <= 0 {
		return DefaultWindowDays
	}
	return s.WindowDays
}

// CacheKey is the Redis key of an owner's cached summary.
func CacheKey(owner string) string {
	return "earnings:" + owner
}

// Summary returns the earnings of owner. A cached summary computed on an
// earlier UTC day is recomputed so the series window stays current.
func (s *Service) Summary(ctx context.Context, owner market.ContributorID) (Summary, error) {
	if s == nil || s.Store == nil {
		return Summary{}, errors.New("earnings service not configured")
	}
	if owner.IsZero() {
		return Summary{}, fmt.Errorf("contributor is required: %w", market.ErrInvalidInput)
	}
	now := s.now()
	key := CacheKey(owner.String())
	if cached, ok := s.fromCache(ctx, key); ok && cached.AsOf == now.Format(dayLayout) {
		return cached, nil
	}
	subs, err := s.Store.ListByOwner(ctx, owner)
	if err != nil {
		return Summary{}, market.Persistence("list by owner", err)
	}
	summary := Compute(owner.String(), subs, now, s.share(), s.window())
	s.store(ctx, key, summary)
	return summary, nil
}

// Compute builds the summary for subs as of now. It is pure.
func Compute(owner string, subs []market.Submission, now time.Time, share float64, windowDays int) Summary {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	shareD := decimal.NewFromFloat(share)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := today.AddDate(0, 0, -(windowDays - 1))
	end := today.AddDate(0, 0, 1)

	gross := decimal.Zero
	quality := decimal.Zero
	daily := make(map[string]decimal.Decimal, windowDays)
	sold := 0
	for _, sub := range subs {
		quality = quality.Add(decimal.NewFromFloat(sub.QualityScore))
		if !sub.Sold() {
			continue
		}
		sold++
		payout := decimal.NewFromFloat(sub.Payout)
		gross = gross.Add(payout)
		if sub.TransactionDate == nil {
			continue
		}
		at := sub.TransactionDate.UTC()
		if at.Before(start) || !at.Before(end) {
			continue
		}
		day := at.Format(dayLayout)
		daily[day] = daily[day].Add(payout.Mul(shareD))
	}

	series := make([]Point, windowDays)
	windowNet := decimal.Zero
	for i := 0; i < windowDays; i++ {
		day := start.AddDate(0, 0, i).Format(dayLayout)
		net := daily[day]
		windowNet = windowNet.Add(net)
		series[i] = Point{Date: day, Net: net.InexactFloat64()}
	}

	avg := 0.0
	if len(subs) > 0 {
		avg = quality.Div(decimal.NewFromInt(int64(len(subs)))).InexactFloat64()
	}
	return Summary{
		OwnerID:          owner,
		AsOf:             today.Format(dayLayout),
		TotalSubmissions: len(subs),
		SoldCount:        sold,
		UnsoldCount:      len(subs) - sold,
		GrossEarnings:    gross.InexactFloat64(),
		NetEarnings:      gross.Mul(shareD).InexactFloat64(),
		ContributorShare: share,
		AverageQuality:   avg,
		WindowNet:        windowNet.InexactFloat64(),
		Series:           series,
	}
}

// Invalidate drops the cached summaries of owners.
func (s *Service) Invalidate(ctx context.Context, owners ...string) error {
	if s == nil || s.R == nil || len(owners) == 0 {
		return nil
	}
	keys := make([]string, len(owners))
	for i, owner := range owners {
		keys[i] = CacheKey(owner)
	}
	return s.R.Del(ctx, keys...).Err()
}

// Notify implements events.Notifier by invalidating the owners touched by a
// sale or a submission change.
func (s *Service) Notify(ctx context.Context, ev events.Event) error {
	owners, err := events.AffectedOwners(ev)
	if err != nil {
		return fmt.Errorf("earnings: decode %s payload: %w", ev.Topic, err)
	}
	return s.Invalidate(ctx, owners...)
}

func (s *Service) fromCache(ctx context.Context, key string) (Summary, bool) {
	if s.R == nil || s.TTL <= 0 {
		return Summary{}, false
	}
	data, err := s.R.Get(ctx, key).Bytes()
	if err != nil {
		return Summary{}, false
	}
	var summary Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return Summary{}, false
	}
	return summary, true
}

func (s *Service) store(ctx context.Context, key string, value Summary) {
	if s.R == nil || s.TTL <= 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.R.Set(ctx, key, data, s.TTL).Err(); err != nil && s.Logger != nil {
		s.Logger.Warn().Err(err).Str("key", key).Msg("earnings_cache_write_failed")
	}
}
