// Package profile serves the opaque agency profile and contributor contact
// details used for sale notifications.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/datanexus/internal/common"
	"github.com/noah-isme/datanexus/internal/identity"
	"github.com/noah-isme/datanexus/internal/market"
)

// Store reads and writes profile records.
type Store interface {
	GetAgency(ctx context.Context, id market.AgencyID) (market.Agency, error)
	UpsertAgency(ctx context.Context, agency market.Agency) (market.Agency, error)
	SetContributorEmail(ctx context.Context, id market.ContributorID, email string) error
	ContributorEmail(ctx context.Context, id market.ContributorID) (string, error)
}

// Handler exposes profile endpoints.
type Handler struct {
	Store    Store
	Validate *validator.Validate
	Now      func() time.Time
}

type agencyRequest struct {
	Name         string `json:"name" validate:"max=200"`
	ContactEmail string `json:"contactEmail" validate:"omitempty,email"`
	Phone        string `json:"phone" validate:"max=40"`
}

type agencyView struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ContactEmail string    `json:"contactEmail"`
	Phone        string    `json:"phone"`
	UpdatedAt    time.Time `json:"updatedAt,omitzero"`
}

type contributorRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

func (h *Handler) validate(w http.ResponseWriter, req any) bool {
	if h.Validate == nil {
		return true
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid profile", map[string]any{"error": err.Error()})
		return false
	}
	return true
}

// GetAgency returns the calling agency's profile. Agencies that never saved a
// profile get an empty one.
func (h *Handler) GetAgency(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "profile store not configured", nil)
		return
	}
	id, _ := identity.AgencyFrom(r.Context())
	agency, err := h.Store.GetAgency(r.Context(), id)
	switch {
	case errors.Is(err, market.ErrNotFound):
		agency = market.Agency{ID: id}
	case err != nil:
		common.WriteError(w, market.Persistence("get agency", err))
		return
	}
	common.Data(w, http.StatusOK, toAgencyView(agency))
}

// PutAgency replaces the calling agency's profile.
func (h *Handler) PutAgency(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "profile store not configured", nil)
		return
	}
	id, _ := identity.AgencyFrom(r.Context())
	var req agencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if !h.validate(w, req) {
		return
	}
	agency, err := h.Store.UpsertAgency(r.Context(), market.Agency{
		ID:           id,
		Name:         strings.TrimSpace(req.Name),
		ContactEmail: strings.TrimSpace(req.ContactEmail),
		Phone:        strings.TrimSpace(req.Phone),
		UpdatedAt:    h.now(),
	})
	if err != nil {
		common.WriteError(w, market.Persistence("upsert agency", err))
		return
	}
	common.Data(w, http.StatusOK, toAgencyView(agency))
}

// GetContributor returns the contact address sale notifications go to.
func (h *Handler) GetContributor(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "profile store not configured", nil)
		return
	}
	id, _ := identity.ContributorFrom(r.Context())
	email, err := h.Store.ContributorEmail(r.Context(), id)
	if err != nil && !errors.Is(err, market.ErrNotFound) {
		common.WriteError(w, market.Persistence("contributor email", err))
		return
	}
	common.Data(w, http.StatusOK, map[string]any{"id": id.String(), "email": email})
}

// PutContributor registers the contributor's notification address.
func (h *Handler) PutContributor(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "profile store not configured", nil)
		return
	}
	id, _ := identity.ContributorFrom(r.Context())
	var req contributorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if !h.validate(w, req) {
		return
	}
	email := strings.TrimSpace(req.Email)
	if err := h.Store.SetContributorEmail(r.Context(), id, email); err != nil {
		common.WriteError(w, market.Persistence("set contributor email", err))
		return
	}
	common.Data(w, http.StatusOK, map[string]any{"id": id.String(), "email": email})
}

func toAgencyView(a market.Agency) agencyView {
	return agencyView{
		ID:           a.ID.String(),
		Name:         a.Name,
		ContactEmail: a.ContactEmail,
		Phone:        a.Phone,
		UpdatedAt:    a.UpdatedAt,
	}
}
