package settlement

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/datanexus/internal/common"
	"github.com/noah-isme/datanexus/internal/identity"
	"github.com/noah-isme/datanexus/internal/market"
)

// Reader exposes the read side used by the agency dashboard.
type Reader interface {
	ListSoldTo(ctx context.Context, agency market.AgencyID) ([]market.Submission, error)
	CountUnsoldByCategory(ctx context.Context) ([]market.CategoryStock, error)
}

// Handler wires settlements to HTTP.
type Handler struct {
	Svc      *Service
	Reader   Reader
	Validate *validator.Validate
}

type purchaseRequest struct {
	Category string `json:"category" validate:"required,max=120"`
}

type purchaseView struct {
	SubmissionID    string    `json:"submissionId"`
	Category        string    `json:"category"`
	Title           string    `json:"title"`
	BlobURL         string    `json:"blobUrl"`
	QualityScore    float64   `json:"qualityScore"`
	SoldPrice       float64   `json:"soldPrice"`
	TransactionDate time.Time `json:"transactionDate"`
}

// Purchase settles a single category for the calling agency.
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "settlement service not configured", nil)
		return
	}
	agency, _ := identity.AgencyFrom(r.Context())
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	req.Category = strings.TrimSpace(req.Category)
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "category is required", map[string]any{"error": err.Error()})
			return
		}
	}
	outcome, err := h.Svc.Purchase(r.Context(), req.Category, agency)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, outcome)
}

// ListPurchases returns submissions bought by the calling agency, newest first.
func (h *Handler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	if h.Reader == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "purchase reader not configured", nil)
		return
	}
	agency, _ := identity.AgencyFrom(r.Context())
	subs, err := h.Reader.ListSoldTo(r.Context(), agency)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	views := make([]purchaseView, 0, len(subs))
	for _, sub := range subs {
		view := purchaseView{
			SubmissionID: sub.ID,
			Category:     sub.Category,
			Title:        sub.Title,
			BlobURL:      sub.BlobURL,
			QualityScore: sub.QualityScore,
			SoldPrice:    sub.SoldPrice,
		}
		if sub.TransactionDate != nil {
			view.TransactionDate = *sub.TransactionDate
		}
		views = append(views, view)
	}
	page, perPage := common.ParsePagination(r, 50)
	items, meta := common.Paginate(views, page, perPage)
	common.Page(w, items, meta)
}

// Categories reports unsold stock per category.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	if h.Reader == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "inventory reader not configured", nil)
		return
	}
	stock, err := h.Reader.CountUnsoldByCategory(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	type categoryView struct {
		Category string `json:"category"`
		Unsold   int    `json:"unsold"`
	}
	out := make([]categoryView, 0, len(stock))
	for _, c := range stock {
		out = append(out, categoryView{Category: c.Category, Unsold: c.Unsold})
	}
	common.Data(w, http.StatusOK, out)
}
