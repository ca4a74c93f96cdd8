// Package admin serves the cross-user KYC overview.
package admin

import (
	"context"
	"errors"

	"securekyc/internal/kyc/models"
	dErrors "securekyc/pkg/domain-errors"
)

// RecordLister reads every record with its owner's email, newest first.
type RecordLister interface {
	ListAllWithOwner(ctx context.Context, status *models.Status) ([]models.OwnedSubmission, error)
}

type Service struct {
	records RecordLister
}

func NewService(records RecordLister) (*Service, error) {
	if records == nil {
		return nil, errors.New("record lister is required")
	}
	return &Service{records: records}, nil
}

// AllKYC returns totals over every record and the records matching status
// (all of them when status is nil).
func (s *Service) AllKYC(ctx context.Context, status *models.Status) (*models.AdminSummary, error) {
	all, err := s.records.ListAllWithOwner(ctx, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load KYC records")
	}

	summary := &models.AdminSummary{Records: make([]models.OwnedSubmission, 0, len(all))}
	for _, rec := range all {
		summary.Add(rec.Status)
		if status == nil || rec.Status == *status {
			summary.Records = append(summary.Records, rec)
		}
	}
	return summary, nil
}
