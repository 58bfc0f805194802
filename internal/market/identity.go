package market

import (
	"fmt"
	"strings"
)

// AgencyID identifies a purchasing agency. The same value is used as the
// record id and as the lookup key for its cart.
type AgencyID struct {
	value string
}

// NewAgencyID validates and wraps a raw agency identifier.
func NewAgencyID(raw string) (AgencyID, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return AgencyID{}, fmt.Errorf("agency id is required: %w", ErrInvalidInput)
	}
	return AgencyID{value: v}, nil
}

// MustAgencyID is NewAgencyID for fixtures and tests.
func MustAgencyID(raw string) AgencyID {
	id, err := NewAgencyID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the canonical identifier.
func (a AgencyID) String() string { return a.value }

// IsZero reports whether the identifier is unset.
func (a AgencyID) IsZero() bool { return a.value == "" }

// ContributorID identifies the owner of submissions.
type ContributorID struct {
	value string
}

// NewContributorID validates and wraps a raw contributor identifier.
func NewContributorID(raw string) (ContributorID, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return ContributorID{}, fmt.Errorf("contributor id is required: %w", ErrInvalidInput)
	}
	return ContributorID{value: v}, nil
}

// MustContributorID is NewContributorID for fixtures and tests.
func MustContributorID(raw string) ContributorID {
	id, err := NewContributorID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the canonical identifier.
func (c ContributorID) String() string { return c.value }

// IsZero reports whether the identifier is unset.
func (c ContributorID) IsZero() bool { return c.value == "" }
