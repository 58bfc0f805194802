package cart

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/datanexus/internal/common"
	"github.com/noah-isme/datanexus/internal/identity"
	"github.com/noah-isme/datanexus/internal/market"
)

// Handler wires cart services to HTTP.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type addLineRequest struct {
	Category string `json:"category" validate:"required,max=120"`
}

// LineView is the JSON shape of a cart line.
type LineView struct {
	ID       string    `json:"id"`
	Category string    `json:"category"`
	AddedAt  time.Time `json:"addedAt"`
}

// View is the JSON shape of a cart.
type View struct {
	AgencyID string     `json:"agencyId"`
	Version  int64      `json:"version"`
	Lines    []LineView `json:"lines"`
}

// ToView converts a cart for rendering.
func ToView(c market.Cart) View {
	lines := make([]LineView, 0, len(c.Lines))
	for _, line := range c.Lines {
		lines = append(lines, LineView{ID: line.ID, Category: line.Category, AddedAt: line.AddedAt})
	}
	return View{AgencyID: c.Agency.String(), Version: c.Version, Lines: lines}
}

// Get returns the calling agency's cart.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	agency, _ := identity.AgencyFrom(r.Context())
	c, err := h.Svc.Get(r.Context(), agency)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, ToView(c))
}

// AddLine appends a category line.
func (h *Handler) AddLine(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	agency, _ := identity.AgencyFrom(r.Context())
	var req addLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid category", map[string]any{"error": err.Error()})
			return
		}
	}
	c, err := h.Svc.Add(r.Context(), agency, req.Category)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, ToView(c))
}

// RemoveLine deletes a line by id or category.
func (h *Handler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	agency, _ := identity.AgencyFrom(r.Context())
	c, err := h.Svc.Remove(r.Context(), agency, chi.URLParam(r, "ref"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, ToView(c))
}

// Clear empties the cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	agency, _ := identity.AgencyFrom(r.Context())
	if _, err := h.Svc.Clear(r.Context(), agency); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
