package market

import "time"

// CartLine is a category-scoped purchase intent.
type CartLine struct {
	ID       string
	Category string
	AddedAt  time.Time
}

// Cart holds an agency's pending purchase intents in insertion order.
type Cart struct {
	Agency  AgencyID
	Lines   []CartLine
	Version int64
}

// HasCategory reports whether a line for category exists.
func (c Cart) HasCategory(category string) bool {
	for _, line := range c.Lines {
		if line.Category == category {
			return true
		}
	}
	return false
}

// Categories returns the line categories in cart order.
func (c Cart) Categories() []string {
	out := make([]string, 0, len(c.Lines))
	for _, line := range c.Lines {
		out = append(out, line.Category)
	}
	return out
}

// Agency carries the opaque profile of a purchasing agency.
type Agency struct {
	ID           AgencyID
	Name         string
	ContactEmail string
	Phone        string
	UpdatedAt    time.Time
}
