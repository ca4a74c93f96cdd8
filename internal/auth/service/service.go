// Package service registers accounts and logs users in.
package service

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"securekyc/internal/auth/models"
	"securekyc/internal/auth/secrets"
	"securekyc/internal/platform/metrics"
	id "securekyc/pkg/domain"
	dErrors "securekyc/pkg/domain-errors"
	"securekyc/pkg/platform/audit"
	"securekyc/pkg/platform/sentinel"
	"securekyc/pkg/requestcontext"
)

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	GenerateAccessToken(userID id.UserID, email string) (string, error)
	TTL() time.Duration
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// errInvalidCredentials covers both unknown emails and wrong passwords.
var errInvalidCredentials = dErrors.New(dErrors.CodeUnauthorized, "Invalid email or password")

type Service struct {
	users   UserStore
	tokens  TokenIssuer
	auditor AuditPublisher
	metrics *metrics.Metrics
	logger  *slog.Logger
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

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

func New(users UserStore, tokens TokenIssuer, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, errors.New("user store is required")
	}
	if tokens == nil {
		return nil, errors.New("token issuer is required")
	}
	s := &Service{
		users:  users,
		tokens: tokens,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates an account. Emails are trimmed and lower-cased.
func (s *Service) Register(ctx context.Context, email, password string) (*models.User, error) {
	email = normalizeEmail(email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, dErrors.New(dErrors.CodeValidation, "a valid email is required")
	}
	if len(password) < models.MinPasswordLength {
		return nil, dErrors.New(dErrors.CodeValidation, "password must be at least 8 characters")
	}

	hash, err := secrets.Hash(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:           id.NewUserID(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    requestcontext.Now(ctx),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "Email already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}

	s.metrics.IncrementUsersRegistered()
	s.emit(ctx, audit.Event{UserID: user.ID, Email: user.Email, Action: string(audit.EventUserRegistered)})
	s.logger.InfoContext(ctx, "user registered",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", user.ID,
	)
	return user, nil
}

// Login verifies credentials and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (*models.Session, error) {
	email = normalizeEmail(email)

	user, err := s.users.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		_ = secrets.BurnVerify(password)
		return nil, s.loginFailed(ctx, email, id.UserID{}, "unknown_email")
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}

	if err := secrets.Verify(password, user.PasswordHash); err != nil {
		if errors.Is(err, secrets.ErrMismatch) {
			return nil, s.loginFailed(ctx, email, user.ID, "bad_password")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify password")
	}

	token, err := s.tokens.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}

	s.emit(ctx, audit.Event{UserID: user.ID, Email: user.Email, Action: string(audit.EventLoginSucceeded)})
	return &models.Session{
		AccessToken: token,
		ExpiresIn:   s.tokens.TTL(),
		UserID:      user.ID,
		Email:       user.Email,
	}, nil
}

func (s *Service) loginFailed(ctx context.Context, email string, userID id.UserID, reason string) error {
	s.metrics.IncrementLoginFailures()
	s.emit(ctx, audit.Event{
		UserID: userID,
		Email:  email,
		Action: string(audit.EventLoginFailed),
		Reason: reason,
	})
	s.logger.WarnContext(ctx, "login failed",
		"request_id", requestcontext.RequestID(ctx),
		"reason", reason,
	)
	return errInvalidCredentials
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	event.ClientIP = requestcontext.ClientIP(ctx)
	event.Device = requestcontext.Device(ctx)
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"request_id", event.RequestID,
			"action", event.Action,
			"error", err,
		)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
