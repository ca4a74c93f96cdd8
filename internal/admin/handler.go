package admin

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"securekyc/internal/kyc/models"
	"securekyc/pkg/platform/httputil"
	adminmw "securekyc/pkg/platform/middleware/admin"
	"securekyc/pkg/requestcontext"
)

type service interface {
	AllKYC(ctx context.Context, status *models.Status) (*models.AdminSummary, error)
}

type Handler struct {
	service service
	token   string
	logger  *slog.Logger
}

// NewHandler guards every route with the X-Admin-Token header.
func NewHandler(svc service, token string, logger *slog.Logger) *Handler {
	return &Handler{service: svc, token: token, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(adminmw.RequireAdminToken(h.token, h.logger))
		r.Get("/admin/all-kyc", h.HandleAllKYC)
	})
}

func (h *Handler) HandleAllKYC(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var filter *models.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := models.ParseStatus(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		filter = &status
	}

	summary, err := h.service.AllKYC(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list KYC records",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toAllKYCResponse(summary))
}
