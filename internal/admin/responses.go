package admin

import (
	kychandler "securekyc/internal/kyc/handler"
	"securekyc/internal/kyc/models"
)

// RecordResponse is one row of the admin listing.
type RecordResponse struct {
	kychandler.RecordResponse
	Email string `json:"email"`
}

// AllKYCResponse wraps the totals and the listed rows.
type AllKYCResponse struct {
	Total    int              `json:"total"`
	Approved int              `json:"approved"`
	Review   int              `json:"review"`
	Rejected int              `json:"rejected"`
	Records  []RecordResponse `json:"records"`
}

func toAllKYCResponse(summary *models.AdminSummary) AllKYCResponse {
	records := make([]RecordResponse, 0, len(summary.Records))
	for i := range summary.Records {
		rec := &summary.Records[i]
		records = append(records, RecordResponse{
			RecordResponse: kychandler.ToRecordResponse(&rec.Submission),
			Email:          rec.OwnerEmail,
		})
	}
	return AllKYCResponse{
		Total:    summary.Total,
		Approved: summary.Approved,
		Review:   summary.Review,
		Rejected: summary.Rejected,
		Records:  records,
	}
}
