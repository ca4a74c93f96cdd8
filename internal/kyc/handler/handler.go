// Package handler exposes the KYC operations over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"securekyc/internal/kyc/models"
	id "securekyc/pkg/domain"
	dErrors "securekyc/pkg/domain-errors"
	"securekyc/pkg/platform/httputil"
	"securekyc/pkg/platform/middleware/auth"
	"securekyc/pkg/requestcontext"
)

// Service is the KYC application service.
type Service interface {
	Submit(ctx context.Context, userID id.UserID, applicant models.ApplicantInput, facts models.DocumentFacts) (*models.Result, error)
	Resubmit(ctx context.Context, userID id.UserID, applicant models.ApplicantInput, facts models.DocumentFacts) (*models.Result, error)
	History(ctx context.Context, userID id.UserID) (*models.History, error)
	LatestStatus(ctx context.Context, userID id.UserID) (*models.LatestStatus, error)
}

type Handler struct {
	service      Service
	logger       *slog.Logger
	jwtValidator auth.JWTValidator
}

func New(service Service, jwtValidator auth.JWTValidator, logger *slog.Logger) *Handler {
	return &Handler{
		service:      service,
		logger:       logger,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the bearer-protected /kyc routes on r. afterAuth runs
// once the caller is authenticated, so it can key on the user.
func (h *Handler) Register(r chi.Router, afterAuth ...func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(h.jwtValidator, h.logger))
		r.Use(afterAuth...)
		r.Post("/kyc/submit", h.HandleSubmit)
		r.Post("/kyc/resubmit", h.HandleResubmit)
		r.Get("/kyc/status", h.HandleStatus)
		r.Get("/kyc/history", h.HandleHistory)
	})
}

func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, "submit", h.service.Submit)
}

func (h *Handler) HandleResubmit(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, "resubmit", h.service.Resubmit)
}

type decideFunc func(ctx context.Context, userID id.UserID, applicant models.ApplicantInput, facts models.DocumentFacts) (*models.Result, error)

func (h *Handler) handleDecision(w http.ResponseWriter, r *http.Request, op string, decide decideFunc) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	userID, ok := h.requireUser(w, ctx, requestID)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[SubmitRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := decide(ctx, userID, req.Applicant(), req.Facts())
	if err != nil {
		h.logFailure(ctx, op, requestID, err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toResultResponse(result))
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	userID, ok := h.requireUser(w, ctx, requestID)
	if !ok {
		return
	}

	latest, err := h.service.LatestStatus(ctx, userID)
	if err != nil {
		h.logFailure(ctx, "status", requestID, err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, StatusResponse{
		Status:        string(latest.Status),
		AttemptNumber: latest.AttemptNumber,
		SubmittedAt:   latest.SubmittedAt,
	})
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	userID, ok := h.requireUser(w, ctx, requestID)
	if !ok {
		return
	}

	history, err := h.service.History(ctx, userID)
	if err != nil {
		h.logFailure(ctx, "history", requestID, err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toHistoryResponse(history))
}

func (h *Handler) requireUser(w http.ResponseWriter, ctx context.Context, requestID string) (id.UserID, bool) {
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		// RequireAuth must run before these handlers.
		h.logger.ErrorContext(ctx, "userID missing from context despite auth middleware",
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return id.UserID{}, false
	}
	return userID, true
}

// logFailure logs expected client outcomes at warn and everything else at error.
func (h *Handler) logFailure(ctx context.Context, op, requestID string, err error) {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeTimeout:
		h.logger.ErrorContext(ctx, "kyc request failed",
			"request_id", requestID,
			"operation", op,
			"error", err,
		)
	default:
		h.logger.WarnContext(ctx, "kyc request refused",
			"request_id", requestID,
			"operation", op,
			"error", err,
		)
	}
}
