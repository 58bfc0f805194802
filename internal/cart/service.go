package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/datanexus/internal/market"
	"github.com/noah-isme/datanexus/internal/obs"
)

// ErrNotConfigured indicates the service has no backing store.
var ErrNotConfigured = errors.New("cart service not configured")

// Store persists carts with optimistic versioning.
type Store interface {
	ReadCart(ctx context.Context, agency market.AgencyID) (market.Cart, error)
	WriteCart(ctx context.Context, cart market.Cart) (market.Cart, error)
}

// Service encapsulates cart domain operations.
type Service struct {
	Store      Store
	Now        func() time.Time
	MaxRetries int
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) retries() int {
	if s == nil || s.MaxRetries <= 0 {
		return 5
	}
	return s.MaxRetries
}

// Get returns the agency cart; a missing cart is returned empty.
func (s *Service) Get(ctx context.Context, agency market.AgencyID) (market.Cart, error) {
	if s == nil || s.Store == nil {
		return market.Cart{}, ErrNotConfigured
	}
	cart, err := s.Store.ReadCart(ctx, agency)
	if err != nil {
		return market.Cart{}, market.Persistence("read cart", err)
	}
	return cart, nil
}

// Add appends a line for category. A category already in the cart reports
// market.ErrDuplicateCategory and leaves the cart unchanged.
func (s *Service) Add(ctx context.Context, agency market.AgencyID, category string) (market.Cart, error) {
	category, err := market.NormalizeCategory(category)
	if err != nil {
		return market.Cart{}, err
	}
	return s.mutate(ctx, agency, "add", func(c *market.Cart) (bool, error) {
		if c.HasCategory(category) {
			return false, market.ErrDuplicateCategory
		}
		c.Lines = append(c.Lines, market.CartLine{ID: uuid.NewString(), Category: category, AddedAt: s.now()})
		return true, nil
	})
}

// Remove deletes the line whose id or category equals ref. Unknown refs are a
// no-op.
func (s *Service) Remove(ctx context.Context, agency market.AgencyID, ref string) (market.Cart, error) {
	ref = strings.TrimSpace(ref)
	return s.mutate(ctx, agency, "remove", func(c *market.Cart) (bool, error) {
		kept := c.Lines[:0:0]
		for _, line := range c.Lines {
			if line.ID == ref || line.Category == ref {
				continue
			}
			kept = append(kept, line)
		}
		changed := len(kept) != len(c.Lines)
		c.Lines = kept
		return changed, nil
	})
}

// RemoveCategories drops every line whose category is listed.
func (s *Service) RemoveCategories(ctx context.Context, agency market.AgencyID, categories ...string) (market.Cart, error) {
	drop := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		drop[c] = struct{}{}
	}
	return s.mutate(ctx, agency, "remove_categories", func(c *market.Cart) (bool, error) {
		kept := c.Lines[:0:0]
		for _, line := range c.Lines {
			if _, ok := drop[line.Category]; ok {
				continue
			}
			kept = append(kept, line)
		}
		changed := len(kept) != len(c.Lines)
		c.Lines = kept
		return changed, nil
	})
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, agency market.AgencyID) (market.Cart, error) {
	return s.mutate(ctx, agency, "clear", func(c *market.Cart) (bool, error) {
		changed := len(c.Lines) > 0
		c.Lines = []market.CartLine{}
		return changed, nil
	})
}

// mutate applies fn to a fresh read of the cart and writes it back, re-reading
// and retrying when a concurrent writer bumped the version.
func (s *Service) mutate(ctx context.Context, agency market.AgencyID, op string, fn func(*market.Cart) (bool, error)) (market.Cart, error) {
	if s == nil || s.Store == nil {
		return market.Cart{}, ErrNotConfigured
	}
	if agency.IsZero() {
		return market.Cart{}, fmt.Errorf("agency is required: %w", market.ErrInvalidInput)
	}
	var lastErr error
	for i := 0; i < s.retries(); i++ {
		cart, err := s.Store.ReadCart(ctx, agency)
		if err != nil {
			obs.ObserveCartOperation(op, "error")
			return market.Cart{}, market.Persistence("read cart", err)
		}
		cart.Agency = agency
		changed, err := fn(&cart)
		if err != nil {
			obs.ObserveCartOperation(op, "rejected")
			return market.Cart{}, err
		}
		if !changed {
			obs.ObserveCartOperation(op, "noop")
			return cart, nil
		}
		saved, err := s.Store.WriteCart(ctx, cart)
		if errors.Is(err, market.ErrCartConflict) {
			lastErr = err
			continue
		}
		if errors.Is(err, market.ErrDuplicateCategory) {
			obs.ObserveCartOperation(op, "rejected")
			return market.Cart{}, err
		}
		if err != nil {
			obs.ObserveCartOperation(op, "error")
			return market.Cart{}, market.Persistence("write cart", err)
		}
		obs.ObserveCartOperation(op, "ok")
		return saved, nil
	}
	obs.ObserveCartOperation(op, "conflict")
	return market.Cart{}, lastErr
}
