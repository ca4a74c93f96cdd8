package audit

import (
	"context"
	"time"

	id "securekyc/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance (KYC
	// decisions, account creation). Long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to abuse monitoring: refused
	// resubmissions, failed logins.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity.
	CategoryOperations EventCategory = "operations"
)

type AuditEvent string

const (
	EventUserRegistered AuditEvent = "user_registered"
	EventLoginSucceeded AuditEvent = "login_succeeded"
	EventLoginFailed    AuditEvent = "login_failed"

	EventKYCSubmitted       AuditEvent = "kyc_submitted"
	EventKYCResubmitted     AuditEvent = "kyc_resubmitted"
	EventKYCResubmitRefused AuditEvent = "kyc_resubmit_refused"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventUserRegistered:     CategoryCompliance,
	EventKYCSubmitted:       CategoryCompliance,
	EventKYCResubmitted:     CategoryCompliance,
	EventKYCResubmitRefused: CategorySecurity,
	EventLoginFailed:        CategorySecurity,
	EventLoginSucceeded:     CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is emitted from domain logic to capture key actions. It carries no
// applicant PII beyond the account email; the Aadhaar number never appears here.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	UserID    id.UserID
	Action    string
	// Subject identifies the object acted on (submission ID, email).
	Subject  string
	Decision string
	Reason   string
	Email    string

	RequestID string
	ClientIP  string
	Device    string
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID id.UserID) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
