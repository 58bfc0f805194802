package identity

import (
	"context"

	"github.com/noah-isme/datanexus/internal/market"
)

type contextKey string

const (
	agencyContextKey      contextKey = "identity.agency"
	contributorContextKey contextKey = "identity.contributor"
)

// WithAgency stores the agency identity inside the context.
func WithAgency(ctx context.Context, id market.AgencyID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, agencyContextKey, id)
}

// AgencyFrom extracts the agency identity from the context if available.
func AgencyFrom(ctx context.Context) (market.AgencyID, bool) {
	if ctx == nil {
		return market.AgencyID{}, false
	}
	id, ok := ctx.Value(agencyContextKey).(market.AgencyID)
	if !ok || id.IsZero() {
		return market.AgencyID{}, false
	}
	return id, true
}

// WithContributor stores the contributor identity inside the context.
func WithContributor(ctx context.Context, id market.ContributorID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, contributorContextKey, id)
}

// ContributorFrom extracts the contributor identity from the context if available.
func ContributorFrom(ctx context.Context) (market.ContributorID, bool) {
	if ctx == nil {
		return market.ContributorID{}, false
	}
	id, ok := ctx.Value(contributorContextKey).(market.ContributorID)
	if !ok || id.IsZero() {
		return market.ContributorID{}, false
	}
	return id, true
}
