// Package service coordinates KYC submissions: it scores applicants, decides
// how resubmissions are written, persists records under a per-user
// transaction and emits audit events and notifications.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"securekyc/internal/kyc/metrics"
	"securekyc/internal/kyc/models"
	"securekyc/internal/kyc/rules"
	id "securekyc/pkg/domain"
	dErrors "securekyc/pkg/domain-errors"
	"securekyc/pkg/platform/audit"
	"securekyc/pkg/platform/sentinel"
	"securekyc/pkg/requestcontext"
)

// Store persists KYC records. ListByUser returns records newest first,
// optionally filtered by status.
type Store interface {
	Create(ctx context.Context, sub *models.Submission) error
	Update(ctx context.Context, sub *models.Submission) error
	ListByUser(ctx context.Context, userID id.UserID, status *models.Status) ([]*models.Submission, error)
	ListAllWithOwner(ctx context.Context, status *models.Status) ([]models.OwnedSubmission, error)
}

// Evaluator scores an applicant.
type Evaluator interface {
	Evaluate(applicant models.ApplicantInput, facts models.DocumentFacts) rules.Evaluation
}

// Notifier delivers a decision to the applicant.
type Notifier interface {
	Notify(ctx context.Context, notice models.DecisionNotice) error
}

// AuditPublisher records audit events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

const defaultNotifyTimeout = 5 * time.Second

type Service struct {
	store         Store
	tx            TxRunner
	evaluator     Evaluator
	notifier      Notifier
	auditor       AuditPublisher
	metrics       *metrics.Metrics
	logger        *slog.Logger
	tracer        trace.Tracer
	notifyTimeout time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

// WithNotifyTimeout bounds each notification attempt.
func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.notifyTimeout = d
		}
	}
}

func New(store Store, tx TxRunner, evaluator Evaluator, opts ...Option) *Service {
	s := &Service{
		store:         store,
		tx:            tx,
		evaluator:     evaluator,
		logger:        slog.Default(),
		tracer:        otel.Tracer("securekyc/internal/kyc/service"),
		notifyTimeout: defaultNotifyTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit scores the applicant and always creates a new record with attempt 1.
func (s *Service) Submit(ctx context.Context, userID id.UserID, applicant models.ApplicantInput, facts models.DocumentFacts) (*models.Result, error) {
	ctx, span := s.startSpan(ctx, "kyc.Submit", userID)
	defer span.End()

	if userID.IsNil() {
		return nil, s.fail(span, dErrors.New(dErrors.CodeUnauthorized, "authenticated user required"))
	}

	eval := s.evaluator.Evaluate(applicant, facts)
	sub := &models.Submission{
		ID:             id.NewSubmissionID(),
		UserID:         userID,
		Applicant:      applicant,
		Facts:          facts,
		RiskScore:      eval.RiskScore,
		Status:         eval.Status,
		Reasons:        eval.Reasons,
		DistrictRisk:   eval.DistrictRisk,
		AttemptNumber:  1,
		SubmissionDate: requestcontext.Now(ctx),
	}

	if err := s.store.Create(ctx, sub); err != nil {
		return nil, s.fail(span, translate(err, "failed to save KYC record"))
	}

	s.afterWrite(ctx, span, sub, models.OperationSubmit, audit.EventKYCSubmitted)
	return resultOf(sub), nil
}

// Resubmit re-scores the applicant and writes the result according to Plan,
// serialized per user.
func (s *Service) Resubmit(ctx context.Context, userID id.UserID, applicant models.ApplicantInput, facts models.DocumentFacts) (*models.Result, error) {
	ctx, span := s.startSpan(ctx, "kyc.Resubmit", userID)
	defer span.End()

	if userID.IsNil() {
		return nil, s.fail(span, dErrors.New(dErrors.CodeUnauthorized, "authenticated user required"))
	}

	var written *models.Submission
	err := s.tx.RunInTx(ctx, userID, func(txCtx context.Context) error {
		rejected := models.StatusRejected
		history, err := s.store.ListByUser(txCtx, userID, &rejected)
		if err != nil {
			return fmt.Errorf("list rejected records: %w", err)
		}

		action, err := Plan(history)
		if err != nil {
			return err
		}

		eval := s.evaluator.Evaluate(applicant, facts)
		sub := &models.Submission{
			ID:             id.NewSubmissionID(),
			UserID:         userID,
			Applicant:      applicant,
			Facts:          facts,
			RiskScore:      eval.RiskScore,
			Status:         eval.Status,
			Reasons:        eval.Reasons,
			DistrictRisk:   eval.DistrictRisk,
			AttemptNumber:  action.AttemptNumber,
			SubmissionDate: requestcontext.Now(txCtx),
		}

		if action.Kind == ActionOverwrite {
			sub.ID = action.TargetID()
			err = s.store.Update(txCtx, sub)
		} else {
			err = s.store.Create(txCtx, sub)
		}
		if err != nil {
			return fmt.Errorf("write resubmission: %w", err)
		}
		written = sub
		return nil
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeMaxAttemptsExceeded) {
			s.metrics.IncrementResubmitRefused()
			s.emitAudit(ctx, audit.Event{
				UserID:   userID,
				Action:   string(audit.EventKYCResubmitRefused),
				Decision: "refused",
				Reason:   "max_attempts_exceeded",
			})
			s.logger.InfoContext(ctx, "resubmission refused",
				"request_id", requestcontext.RequestID(ctx),
				"user_id", userID,
			)
		}
		return nil, s.fail(span, translate(err, "failed to save KYC resubmission"))
	}

	s.afterWrite(ctx, span, written, models.OperationResubmit, audit.EventKYCResubmitted)
	return resultOf(written), nil
}

// History returns all of a user's records, most recent first, with totals.
func (s *Service) History(ctx context.Context, userID id.UserID) (*models.History, error) {
	ctx, span := s.startSpan(ctx, "kyc.History", userID)
	defer span.End()

	records, err := s.store.ListByUser(ctx, userID, nil)
	if err != nil {
		return nil, s.fail(span, translate(err, "failed to load KYC history"))
	}

	h := &models.History{Records: records}
	if h.Records == nil {
		h.Records = []*models.Submission{}
	}
	for _, rec := range records {
		h.Add(rec.Status)
	}
	return h, nil
}

// LatestStatus returns the status of the user's most recent record.
func (s *Service) LatestStatus(ctx context.Context, userID id.UserID) (*models.LatestStatus, error) {
	ctx, span := s.startSpan(ctx, "kyc.LatestStatus", userID)
	defer span.End()

	records, err := s.store.ListByUser(ctx, userID, nil)
	if err != nil {
		return nil, s.fail(span, translate(err, "failed to load KYC status"))
	}
	if len(records) == 0 {
		return nil, s.fail(span, dErrors.New(dErrors.CodeNotFound, "No KYC record found"))
	}

	latest := records[0]
	return &models.LatestStatus{
		Status:        latest.Status,
		AttemptNumber: latest.AttemptNumber,
		SubmittedAt:   latest.SubmissionDate,
	}, nil
}

// afterWrite runs the post-commit side effects. None of them can fail the call.
func (s *Service) afterWrite(ctx context.Context, span trace.Span, sub *models.Submission, op models.Operation, event audit.AuditEvent) {
	span.SetAttributes(
		attribute.String("kyc.status", string(sub.Status)),
		attribute.Int("kyc.risk_score", sub.RiskScore),
		attribute.Int("kyc.attempt_number", sub.AttemptNumber),
	)
	s.metrics.ObserveDecision(string(sub.Status), string(op), sub.RiskScore)

	s.logger.InfoContext(ctx, "kyc decision recorded",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", sub.UserID,
		"submission_id", sub.ID,
		"operation", op,
		"status", sub.Status,
		"risk_score", sub.RiskScore,
		"attempt_number", sub.AttemptNumber,
	)

	s.emitAudit(ctx, audit.Event{
		UserID:   sub.UserID,
		Action:   string(event),
		Subject:  sub.ID.String(),
		Decision: string(sub.Status),
		Reason:   fmt.Sprintf("risk_score=%d attempt=%d", sub.RiskScore, sub.AttemptNumber),
	})

	s.notify(ctx, sub, op)
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	event.Email = requestcontext.Email(ctx)
	event.RequestID = requestcontext.RequestID(ctx)
	event.ClientIP = requestcontext.ClientIP(ctx)
	event.Device = requestcontext.Device(ctx)
	event.Timestamp = requestcontext.Now(ctx)
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"request_id", event.RequestID,
			"action", event.Action,
			"error", err,
		)
	}
}

// notify delivers the decision best-effort. It detaches from the caller's
// cancellation so a client disconnect does not abort delivery, and bounds the
// attempt with notifyTimeout.
func (s *Service) notify(ctx context.Context, sub *models.Submission, op models.Operation) {
	if s.notifier == nil {
		return
	}

	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	notice := models.DecisionNotice{
		SubmissionID:  sub.ID,
		UserID:        sub.UserID,
		Email:         requestcontext.Email(ctx),
		Operation:     op,
		Status:        sub.Status,
		RiskScore:     sub.RiskScore,
		Reasons:       sub.Reasons,
		AttemptNumber: sub.AttemptNumber,
		DecidedAt:     sub.SubmissionDate,
	}
	if err := s.notifier.Notify(nctx, notice); err != nil {
		s.logger.WarnContext(ctx, "decision notification failed",
			"request_id", requestcontext.RequestID(ctx),
			"submission_id", sub.ID,
			"error", err,
		)
	}
}

func (s *Service) startSpan(ctx context.Context, name string, userID id.UserID) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("user.id", userID.String())))
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	return err
}

// translate maps store and context failures onto domain errors. Domain errors
// pass through unchanged.
func translate(err error, msg string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "request timed out")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "KYC record not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func resultOf(sub *models.Submission) *models.Result {
	return &models.Result{
		SubmissionID:  sub.ID,
		Status:        sub.Status,
		RiskScore:     sub.RiskScore,
		Reasons:       sub.Reasons,
		DistrictRisk:  sub.DistrictRisk,
		AttemptNumber: sub.AttemptNumber,
	}
}
