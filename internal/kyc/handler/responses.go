package handler

import (
	"time"

	"securekyc/internal/kyc/models"
)

// ResultResponse is returned by submit and resubmit.
type ResultResponse struct {
	SubmissionID       string   `json:"submission_id"`
	VerificationStatus string   `json:"verification_status"`
	RiskScore          int      `json:"risk_score"`
	DistrictRisk       int      `json:"uidai_district_risk"`
	Reasons            []string `json:"reasons"`
	AttemptNumber      int      `json:"attempt_number"`
}

type StatusResponse struct {
	Status        string    `json:"status"`
	AttemptNumber int       `json:"attempt_number"`
	SubmittedAt   time.Time `json:"submission_date"`
}

// RecordResponse is one row of a history listing.
type RecordResponse struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	District       string    `json:"district"`
	Age            int       `json:"age"`
	RiskScore      int       `json:"risk_score"`
	Status         string    `json:"status"`
	Reasons        []string  `json:"reasons"`
	AttemptNumber  int       `json:"attempt_number"`
	SubmissionDate time.Time `json:"submission_date"`
}

type HistoryResponse struct {
	Total    int              `json:"total"`
	Approved int              `json:"approved"`
	Review   int              `json:"review"`
	Rejected int              `json:"rejected"`
	Records  []RecordResponse `json:"records"`
}

func toResultResponse(r *models.Result) ResultResponse {
	return ResultResponse{
		SubmissionID:       r.SubmissionID.String(),
		VerificationStatus: string(r.Status),
		RiskScore:          r.RiskScore,
		DistrictRisk:       r.DistrictRisk,
		Reasons:            nonNil(r.Reasons),
		AttemptNumber:      r.AttemptNumber,
	}
}

// ToRecordResponse renders a stored record. The Aadhaar number is never
// echoed back.
func ToRecordResponse(s *models.Submission) RecordResponse {
	return RecordResponse{
		ID:             s.ID.String(),
		Name:           s.Applicant.Name,
		District:       s.Applicant.District,
		Age:            s.Applicant.Age,
		RiskScore:      s.RiskScore,
		Status:         string(s.Status),
		Reasons:        nonNil(s.Reasons),
		AttemptNumber:  s.AttemptNumber,
		SubmissionDate: s.SubmissionDate,
	}
}

func toHistoryResponse(h *models.History) HistoryResponse {
	records := make([]RecordResponse, 0, len(h.Records))
	for _, rec := range h.Records {
		records = append(records, ToRecordResponse(rec))
	}
	return HistoryResponse{
		Total:    h.Total,
		Approved: h.Approved,
		Review:   h.Review,
		Rejected: h.Rejected,
		Records:  records,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
