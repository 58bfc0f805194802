package checkout

import (
	"net/http"

	"github.com/noah-isme/datanexus/internal/common"
	"github.com/noah-isme/datanexus/internal/identity"
)

// Handler wires checkout to HTTP.
type Handler struct {
	Svc *Service
}

// Checkout settles the calling agency's cart. Partial success is still a 200
// with per-line results.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	agency, ok := identity.AgencyFrom(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "agency identity required", nil)
		return
	}
	summary, err := h.Svc.Checkout(r.Context(), agency)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, summary)
}
