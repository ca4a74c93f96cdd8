// Package models holds the KYC submission record and the value types that
// flow between the evaluator, the service and the stores.
package models

import (
	"time"

	id "securekyc/pkg/domain"
	dErrors "securekyc/pkg/domain-errors"
)

// Status is the decision derived from a risk score.
type Status string

const (
	StatusApproved Status = "APPROVED"
	StatusReview   Status = "REVIEW"
	StatusRejected Status = "REJECTED"
)

// MaxAttempts caps resubmissions of a rejected lineage.
const MaxAttempts = 3

// ParseStatus accepts the exact upper-case status names.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusApproved, StatusReview, StatusRejected:
		return Status(s), nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "status must be one of APPROVED, REVIEW, REJECTED")
}

// ApplicantInput is the applicant-declared data. It is scored as given.
type ApplicantInput struct {
	Name          string
	AadhaarNumber string
	District      string
	Age           int
}

// DocumentFacts are the outputs of document checks. They add advisory
// reasons but never change the score.
type DocumentFacts struct {
	AadhaarFound bool
	NameFound    bool
	FaceDetected bool
	Flags        *string
}

// Submission is one stored KYC record.
type Submission struct {
	ID             id.SubmissionID
	UserID         id.UserID
	Applicant      ApplicantInput
	Facts          DocumentFacts
	RiskScore      int
	Status         Status
	Reasons        []string
	DistrictRisk   int
	AttemptNumber  int
	SubmissionDate time.Time
}

// Result is returned to callers of Submit and Resubmit.
type Result struct {
	SubmissionID  id.SubmissionID
	Status        Status
	RiskScore     int
	Reasons       []string
	DistrictRisk  int
	AttemptNumber int
}

// Counts tallies records by status.
type Counts struct {
	Total    int
	Approved int
	Review   int
	Rejected int
}

// Add counts one record.
func (c *Counts) Add(s Status) {
	c.Total++
	switch s {
	case StatusApproved:
		c.Approved++
	case StatusReview:
		c.Review++
	case StatusRejected:
		c.Rejected++
	}
}

// History is a user's records, most recent first, with totals.
type History struct {
	Counts
	Records []*Submission
}

// LatestStatus is the status of a user's most recent record.
type LatestStatus struct {
	Status        Status
	AttemptNumber int
	SubmittedAt   time.Time
}

// OwnedSubmission joins a record with its owner's email for admin views.
type OwnedSubmission struct {
	Submission
	OwnerEmail string
}

// AdminSummary is the cross-user aggregate.
type AdminSummary struct {
	Counts
	Records []OwnedSubmission
}

// Operation names the call that produced a decision.
type Operation string

const (
	OperationSubmit   Operation = "submit"
	OperationResubmit Operation = "resubmit"
)

// DecisionNotice is what notifiers render and deliver to the applicant.
type DecisionNotice struct {
	SubmissionID  id.SubmissionID
	UserID        id.UserID
	Email         string
	Operation     Operation
	Status        Status
	RiskScore     int
	Reasons       []string
	AttemptNumber int
	DecidedAt     time.Time
}
