package service

import (
	"securekyc/internal/kyc/models"
	id "securekyc/pkg/domain"
	dErrors "securekyc/pkg/domain-errors"
)

// ActionKind says whether a resubmission creates a record or overwrites one.
type ActionKind int

const (
	ActionCreate ActionKind = iota
	ActionOverwrite
)

// Action is the outcome of Plan.
type Action struct {
	Kind ActionKind
	// Target is the rejected record to overwrite (ActionOverwrite only).
	Target *models.Submission
	// AttemptNumber is the attempt the written record will carry.
	AttemptNumber int
}

// ErrMaxAttemptsExceeded is returned when a user already has MaxAttempts
// rejected records.
var ErrMaxAttemptsExceeded = dErrors.New(dErrors.CodeMaxAttemptsExceeded, "Maximum resubmission attempts reached")

// Plan decides how a resubmission is written from the user's full history.
//
// Three or more REJECTED records refuse the request. Otherwise the most
// recent REJECTED record is overwritten with the attempt number advanced (at
// most MaxAttempts). With no REJECTED record, a new record with attempt 1 is
// created, even when the history holds APPROVED or REVIEW records.
func Plan(history []*models.Submission) (Action, error) {
	var latest *models.Submission
	rejected := 0
	for _, rec := range history {
		if rec.Status != models.StatusRejected {
			continue
		}
		rejected++
		if latest == nil || rec.SubmissionDate.After(latest.SubmissionDate) {
			latest = rec
		}
	}

	if rejected >= models.MaxAttempts {
		return Action{}, ErrMaxAttemptsExceeded
	}
	if latest == nil {
		return Action{Kind: ActionCreate, AttemptNumber: 1}, nil
	}
	return Action{
		Kind:          ActionOverwrite,
		Target:        latest,
		AttemptNumber: min(latest.AttemptNumber+1, models.MaxAttempts),
	}, nil
}

// TargetID is the overwritten record's ID, or the zero ID for ActionCreate.
func (a Action) TargetID() id.SubmissionID {
	if a.Target == nil {
		return id.SubmissionID{}
	}
	return a.Target.ID
}
