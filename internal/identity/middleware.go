package identity

import (
	"net/http"
	"strings"

	"github.com/noah-isme/datanexus/internal/common"
	"github.com/noah-isme/datanexus/internal/market"
)

// Default header names set by the upstream gateway after authentication.
const (
	DefaultAgencyHeader      = "X-Agency-ID"
	DefaultContributorHeader = "X-Contributor-ID"
)

// Resolver reads trusted identity headers and stores them on the request context.
type Resolver struct {
	AgencyHeader      string
	ContributorHeader string
}

// NewResolver returns a resolver for the given header names, falling back to
// the defaults when empty.
func NewResolver(agencyHeader, contributorHeader string) *Resolver {
	if strings.TrimSpace(agencyHeader) == "" {
		agencyHeader = DefaultAgencyHeader
	}
	if strings.TrimSpace(contributorHeader) == "" {
		contributorHeader = DefaultContributorHeader
	}
	return &Resolver{AgencyHeader: agencyHeader, ContributorHeader: contributorHeader}
}

// Middleware injects whichever identities are present. Missing headers are not
// an error here; RequireAgency and RequireContributor enforce them per route.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		if id, err := market.NewAgencyID(req.Header.Get(r.AgencyHeader)); err == nil {
			ctx = WithAgency(ctx, id)
		}
		if id, err := market.NewContributorID(req.Header.Get(r.ContributorHeader)); err == nil {
			ctx = WithContributor(ctx, id)
		}
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

// RequireAgency rejects requests without an agency identity.
func RequireAgency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := AgencyFrom(r.Context()); !ok {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "agency identity required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireContributor rejects requests without a contributor identity.
func RequireContributor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := ContributorFrom(r.Context()); !ok {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "contributor identity required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
