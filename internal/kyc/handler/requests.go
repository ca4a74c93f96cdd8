package handler

import (
	"securekyc/internal/kyc/models"
	dErrors "securekyc/pkg/domain-errors"
)

const (
	maxFieldLen = 256
	maxFlagsLen = 2048
)

// SubmitRequest is the body of /kyc/submit and /kyc/resubmit. Field content
// is scored by the rule set, so only structure is checked here.
type SubmitRequest struct {
	Name            string  `json:"name"`
	AadhaarNumber   string  `json:"aadhaar_number"`
	District        string  `json:"district"`
	Age             *int    `json:"age"`
	OCRAadhaarFound bool    `json:"ocr_aadhaar_found"`
	OCRNameFound    bool    `json:"ocr_name_found"`
	FaceDetected    bool    `json:"face_detected"`
	OCRFlags        *string `json:"ocr_flags"`
}

func (r *SubmitRequest) Validate() error {
	if r.Age == nil {
		return dErrors.New(dErrors.CodeValidation, "age is required")
	}
	fields := []struct{ name, value string }{
		{"name", r.Name},
		{"aadhaar_number", r.AadhaarNumber},
		{"district", r.District},
	}
	for _, f := range fields {
		if len(f.value) > maxFieldLen {
			return dErrors.New(dErrors.CodeValidation, f.name+" is too long")
		}
	}
	if r.OCRFlags != nil && len(*r.OCRFlags) > maxFlagsLen {
		return dErrors.New(dErrors.CodeValidation, "ocr_flags is too long")
	}
	return nil
}

// Applicant returns the input exactly as sent; the rules score it verbatim.
func (r *SubmitRequest) Applicant() models.ApplicantInput {
	return models.ApplicantInput{
		Name:          r.Name,
		AadhaarNumber: r.AadhaarNumber,
		District:      r.District,
		Age:           *r.Age,
	}
}

func (r *SubmitRequest) Facts() models.DocumentFacts {
	return models.DocumentFacts{
		AadhaarFound: r.OCRAadhaarFound,
		NameFound:    r.OCRNameFound,
		FaceDetected: r.FaceDetected,
		Flags:        r.OCRFlags,
	}
}
