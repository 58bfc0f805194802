package submission

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

// Handler exposes contributor submission endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type createRequest struct {
	Category     string   `json:"category" validate:"required,max=120"`
	Title        string   `json:"title" validate:"max=200"`
	BlobURL      string   `json:"blobUrl" validate:"omitempty,url"`
	QualityScore *float64 `json:"qualityScore" validate:"required,gte=0"`
}

// View is the JSON shape of a submission as seen by its owner.
type View struct {
	ID              string     `json:"id"`
	Category        string     `json:"category"`
	Title           string     `json:"title"`
	BlobURL         string     `json:"blobUrl"`
	QualityScore    float64    `json:"qualityScore"`
	Sold            bool       `json:"sold"`
	Payout          float64    `json:"payout"`
	TransactionDate *time.Time `json:"transactionDate,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// ToView converts a submission for rendering. The buying agency is not exposed.
func ToView(sub market.Submission) View {
	return View{
		ID:              sub.ID,
		Category:        sub.Category,
		Title:           sub.Title,
		BlobURL:         sub.BlobURL,
		QualityScore:    sub.QualityScore,
		Sold:            sub.Sold(),
		Payout:          sub.Payout,
		TransactionDate: sub.TransactionDate,
		CreatedAt:       sub.CreatedAt,
	}
}

// Create records submission metadata for the calling contributor.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "submission service not configured", nil)
		return
	}
	owner, _ := identity.ContributorFrom(r.Context())
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid submission", map[string]any{"error": err.Error()})
			return
		}
	}
	var quality float64
	if req.QualityScore != nil {
		quality = *req.QualityScore
	}
	sub, err := h.Svc.Create(r.Context(), owner, Input{
		Category:     req.Category,
		Title:        req.Title,
		BlobURL:      req.BlobURL,
		QualityScore: quality,
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, ToView(sub))
}

// List returns the contributor's submissions.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "submission service not configured", nil)
		return
	}
	owner, _ := identity.ContributorFrom(r.Context())
	subs, err := h.Svc.List(r.Context(), owner)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	views := make([]View, 0, len(subs))
	for _, sub := range subs {
		views = append(views, ToView(sub))
	}
	page, perPage := common.ParsePagination(r, 50)
	items, meta := common.Paginate(views, page, perPage)
	common.Page(w, items, meta)
}

// Get returns one of the contributor's submissions.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "submission service not configured", nil)
		return
	}
	owner, _ := identity.ContributorFrom(r.Context())
	sub, err := h.Svc.Get(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, ToView(sub))
}

// Delete removes an unsold submission.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "submission service not configured", nil)
		return
	}
	owner, _ := identity.ContributorFrom(r.Context())
	if err := h.Svc.Delete(r.Context(), owner, chi.URLParam(r, "id")); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
