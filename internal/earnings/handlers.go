package earnings

import (
	"net/http"

	"github.com/noah-isme/datanexus/internal/common"
	"github.com/noah-isme/datanexus/internal/identity"
)

// Handler exposes the contributor earnings endpoint.
type Handler struct {
	Svc *Service
}

// Get returns the calling contributor's earnings summary.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "EARNINGS_NOT_CONFIGURED", "earnings service not configured", nil)
		return
	}
	owner, ok := identity.ContributorFrom(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "contributor identity required", nil)
		return
	}
	summary, err := h.Svc.Summary(r.Context(), owner)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, summary)
}
