package repo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/datanexus/internal/events"
	"github.com/noah-isme/datanexus/internal/market"
)

// Memory is an in-process store used by tests and the memory driver. All
// methods are safe for concurrent use; the mutex provides the same
// compare-and-swap guarantees as the conditional updates in Postgres.
type Memory struct {
	mu           sync.Mutex
	submissions  map[string]market.Submission
	carts        map[string]market.Cart
	agencies     map[string]market.Agency
	contributors map[string]string
	events       []events.Event

	// FailNext, when set, is consulted at the start of every mutating call
	// and of the listing queries. A non-nil return is reported as a
	// persistence failure.
	FailNext func(op string) error
}

// NewMemory constructs an empty store.
func NewMemory() *Memory {
	return &Memory{
		submissions:  make(map[string]market.Submission),
		carts:        make(map[string]market.Cart),
		agencies:     make(map[string]market.Agency),
		contributors: make(map[string]string),
	}
}

func (m *Memory) fault(op string) error {
	if m.FailNext == nil {
		return nil
	}
	if err := m.FailNext(op); err != nil {
		return market.Persistence(op, err)
	}
	return nil
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// InsertSubmission stores a new submission.
func (m *Memory) InsertSubmission(_ context.Context, sub market.Submission) (market.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("insert submission"); err != nil {
		return market.Submission{}, err
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	m.submissions[sub.ID] = cloneSubmission(sub)
	return cloneSubmission(sub), nil
}

// GetSubmission fetches a submission by id.
func (m *Memory) GetSubmission(_ context.Context, id string) (market.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.submissions[id]
	if !ok {
		return market.Submission{}, market.ErrNotFound
	}
	return cloneSubmission(sub), nil
}

// DeleteUnsoldSubmission removes an unsold submission owned by owner.
func (m *Memory) DeleteUnsoldSubmission(_ context.Context, owner market.ContributorID, id string, now time.Time) (market.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("delete submission"); err != nil {
		return market.Submission{}, err
	}
	sub, ok := m.submissions[id]
	if !ok || sub.OwnerID != owner {
		return market.Submission{}, market.ErrNotFound
	}
	if sub.Sold() {
		return market.Submission{}, market.ErrAlreadySold
	}
	if sub.ReservedAt(now) {
		return market.Submission{}, market.ErrAlreadyClaimed
	}
	delete(m.submissions, id)
	return cloneSubmission(sub), nil
}

// ListByOwner returns every submission of owner, oldest first.
func (m *Memory) ListByOwner(_ context.Context, owner market.ContributorID) ([]market.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("list by owner"); err != nil {
		return nil, err
	}
	out := make([]market.Submission, 0)
	for _, sub := range m.submissions {
		if sub.OwnerID == owner {
			out = append(out, cloneSubmission(sub))
		}
	}
	sortByCreated(out)
	return out, nil
}

// ListUnsoldByCategory returns up to limit claimable submissions of category
// in store order (created_at, id).
func (m *Memory) ListUnsoldByCategory(_ context.Context, category string, now time.Time, limit int) ([]market.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("list unsold"); err != nil {
		return nil, err
	}
	out := make([]market.Submission, 0)
	for _, sub := range m.submissions {
		if sub.Category == category && sub.Claimable(now) {
			out = append(out, cloneSubmission(sub))
		}
	}
	sortByCreated(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Reserve claims a submission for a settlement until r.Until.
func (m *Memory) Reserve(_ context.Context, r market.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("reserve"); err != nil {
		return err
	}
	sub, ok := m.submissions[r.SubmissionID]
	if !ok || !sub.Claimable(r.Now) {
		return market.ErrAlreadyClaimed
	}
	until := r.Until
	sub.ReservedBy = r.SettlementID
	sub.ReservedUntil = &until
	m.submissions[sub.ID] = sub
	return nil
}

// CommitSale marks every sale item sold or none of them.
func (m *Memory) CommitSale(_ context.Context, sale market.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("commit sale"); err != nil {
		return err
	}
	for _, item := range sale.Items {
		sub, ok := m.submissions[item.SubmissionID]
		if !ok || sub.Sold() || sub.ReservedBy != sale.SettlementID {
			return market.ErrAlreadyClaimed
		}
	}
	agency := sale.Agency
	soldAt := sale.SoldAt
	for _, item := range sale.Items {
		sub := m.submissions[item.SubmissionID]
		sub.SoldTo = &agency
		sub.Payout = item.Payout
		sub.SoldPrice = item.Payout
		sub.TransactionDate = &soldAt
		sub.ReservedBy = ""
		sub.ReservedUntil = nil
		m.submissions[sub.ID] = sub
	}
	return nil
}

// Release drops reservations held by settlementID. Items reserved by other
// settlements are left alone.
func (m *Memory) Release(_ context.Context, settlementID string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		sub, ok := m.submissions[id]
		if !ok || sub.ReservedBy != settlementID {
			continue
		}
		sub.ReservedBy = ""
		sub.ReservedUntil = nil
		m.submissions[id] = sub
	}
	return nil
}

// ListSoldTo returns the submissions bought by agency, newest first.
func (m *Memory) ListSoldTo(_ context.Context, agency market.AgencyID) ([]market.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("list sold"); err != nil {
		return nil, err
	}
	out := make([]market.Submission, 0)
	for _, sub := range m.submissions {
		if sub.SoldTo != nil && *sub.SoldTo == agency {
			out = append(out, cloneSubmission(sub))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := *out[i].TransactionDate, *out[j].TransactionDate
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// CountUnsoldByCategory returns unsold stock per category sorted by name.
func (m *Memory) CountUnsoldByCategory(context.Context) ([]market.CategoryStock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("count unsold"); err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, sub := range m.submissions {
		if !sub.Sold() {
			counts[sub.Category]++
		}
	}
	out := make([]market.CategoryStock, 0, len(counts))
	for category, n := range counts {
		out = append(out, market.CategoryStock{Category: category, Unsold: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

// ReadCart returns the agency's cart, empty when none exists.
func (m *Memory) ReadCart(_ context.Context, agency market.AgencyID) (market.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("read cart"); err != nil {
		return market.Cart{}, err
	}
	cart, ok := m.carts[agency.String()]
	if !ok {
		return market.Cart{Agency: agency, Lines: []market.CartLine{}}, nil
	}
	return cloneCart(cart), nil
}

// WriteCart replaces the cart when cart.Version matches the stored version.
// The stored version is incremented on success.
func (m *Memory) WriteCart(_ context.Context, cart market.Cart) (market.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("write cart"); err != nil {
		return market.Cart{}, err
	}
	key := cart.Agency.String()
	current := m.carts[key]
	if current.Version != cart.Version {
		return market.Cart{}, market.ErrCartConflict
	}
	seen := make(map[string]struct{}, len(cart.Lines))
	for _, line := range cart.Lines {
		if _, dup := seen[line.Category]; dup {
			return market.Cart{}, market.ErrDuplicateCategory
		}
		seen[line.Category] = struct{}{}
	}
	next := cloneCart(cart)
	next.Version = cart.Version + 1
	m.carts[key] = next
	return cloneCart(next), nil
}

// GetAgency returns the agency profile.
func (m *Memory) GetAgency(_ context.Context, id market.AgencyID) (market.Agency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agency, ok := m.agencies[id.String()]
	if !ok {
		return market.Agency{}, market.ErrNotFound
	}
	return agency, nil
}

// UpsertAgency creates or replaces the agency profile.
func (m *Memory) UpsertAgency(_ context.Context, agency market.Agency) (market.Agency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("upsert agency"); err != nil {
		return market.Agency{}, err
	}
	if agency.UpdatedAt.IsZero() {
		agency.UpdatedAt = time.Now().UTC()
	}
	m.agencies[agency.ID.String()] = agency
	return agency, nil
}

// SetContributorEmail registers the notification address of a contributor.
func (m *Memory) SetContributorEmail(_ context.Context, id market.ContributorID, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contributors[id.String()] = strings.TrimSpace(email)
	return nil
}

// ContributorEmail resolves the notification address of a contributor.
func (m *Memory) ContributorEmail(_ context.Context, id market.ContributorID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email, ok := m.contributors[id.String()]
	if !ok || email == "" {
		return "", market.ErrNotFound
	}
	return email, nil
}

// InsertDomainEvent appends an event to the in-memory log.
func (m *Memory) InsertDomainEvent(_ context.Context, ev events.Event) (events.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("insert event"); err != nil {
		return events.Event{}, err
	}
	ev.Payload = append([]byte(nil), ev.Payload...)
	m.events = append(m.events, ev)
	return ev, nil
}

// Events returns a copy of the recorded domain events.
func (m *Memory) Events() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]events.Event(nil), m.events...)
}

func sortByCreated(subs []market.Submission) {
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].CreatedAt.Before(subs[j].CreatedAt)
		}
		return subs[i].ID < subs[j].ID
	})
}

func cloneSubmission(sub market.Submission) market.Submission {
	if sub.SoldTo != nil {
		agency := *sub.SoldTo
		sub.SoldTo = &agency
	}
	if sub.TransactionDate != nil {
		ts := *sub.TransactionDate
		sub.TransactionDate = &ts
	}
	if sub.ReservedUntil != nil {
		ts := *sub.ReservedUntil
		sub.ReservedUntil = &ts
	}
	return sub
}

func cloneCart(cart market.Cart) market.Cart {
	lines := make([]market.CartLine, len(cart.Lines))
	copy(lines, cart.Lines)
	cart.Lines = lines
	return cart
}
