package market

import "time"

// Submission is a dataset uploaded by a contributor.
type Submission struct {
	ID              string
	OwnerID         ContributorID
	Category        string
	Title           string
	BlobURL         string
	QualityScore    float64
	SoldTo          *AgencyID
	Payout          float64
	SoldPrice       float64
	TransactionDate *time.Time
	CreatedAt       time.Time

	// Reservation held by an in-flight settlement.
	ReservedBy    string
	ReservedUntil *time.Time
}

// Sold reports whether the submission reached its terminal state.
func (s Submission) Sold() bool { return s.SoldTo != nil }

// ReservedAt reports whether an unexpired reservation exists at now.
func (s Submission) ReservedAt(now time.Time) bool {
	return s.ReservedBy != "" && s.ReservedUntil != nil && s.ReservedUntil.After(now)
}

// Claimable reports whether a settlement may reserve the submission at now.
func (s Submission) Claimable(now time.Time) bool {
	return !s.Sold() && !s.ReservedAt(now)
}

// Reservation is the first phase of a claim.
type Reservation struct {
	SubmissionID string
	SettlementID string
	Until        time.Time
	Now          time.Time
}

// SaleItem is one priced submission inside a committed sale.
type SaleItem struct {
	SubmissionID string
	OwnerID      ContributorID
	Payout       float64
}

// Sale is the second phase of a claim. Stores apply it atomically: every item
// becomes sold or none does.
type Sale struct {
	SettlementID string
	Agency       AgencyID
	Category     string
	SoldAt       time.Time
	Items        []SaleItem
}

// CategoryStock is the unsold inventory of one category.
type CategoryStock struct {
	Category string
	Unsold   int
}
