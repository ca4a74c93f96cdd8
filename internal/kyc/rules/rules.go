// Package rules scores KYC applicants. Evaluation is pure: the same input
// always produces the same score, status and reasons.
package rules

import (
	"maps"
	"strings"
	"unicode"
	"unicode/utf8"

	"securekyc/internal/kyc/districts"
	"securekyc/internal/kyc/models"
)

// Score thresholds.
const (
	RejectThreshold = 70
	ReviewThreshold = 40
)

// Advisory reasons appended after scoring when a document check came back false.
const (
	ReasonOCRAadhaarMissing = "OCR could not confirm Aadhaar in document"
	ReasonOCRNameMissing    = "OCR could not confirm name in document"
	ReasonNoFace            = "No face confirmed in document by detector"
)

// RiskTable resolves a district to its risk contribution (0, 15 or 25).
type RiskTable interface {
	Lookup(district string) int
}

// Input is what a rule sees: the applicant plus the resolved district risk.
type Input struct {
	models.ApplicantInput
	DistrictRisk int
}

// Rule is one scoring step. Rules run in slice order; every rule whose
// predicate holds adds Points and appends Reason.
type Rule struct {
	Name    string
	Applies func(Input) bool
	Points  int
	Reason  string
}

// Evaluation is the output of Evaluate.
type Evaluation struct {
	RiskScore    int
	Status       models.Status
	Reasons      []string
	DistrictRisk int
}

// DefaultPrefixes maps districts to the Aadhaar prefix their residents carry.
func DefaultPrefixes() map[string]string {
	return map[string]string{
		"Chennai": "11",
		"Mumbai":  "22",
		"Delhi":   "33",
	}
}

// Evaluator applies an ordered rule set.
type Evaluator struct {
	table RiskTable
	rules []Rule
}

// NewEvaluator builds the standard rule set over table and prefixes. The
// prefix map is copied.
func NewEvaluator(table RiskTable, prefixes map[string]string) *Evaluator {
	return &Evaluator{
		table: table,
		rules: StandardRules(maps.Clone(prefixes)),
	}
}

// StandardRules returns the scoring rules in evaluation order.
func StandardRules(prefixes map[string]string) []Rule {
	return []Rule{
		{
			Name:    "name_too_short",
			Applies: func(in Input) bool { return utf8.RuneCountInString(strings.TrimSpace(in.Name)) < 3 },
			Points:  40,
			Reason:  "Invalid name - too short",
		},
		{
			Name:    "name_not_alphabetic",
			Applies: func(in Input) bool { return hasNonLetter(strings.ReplaceAll(in.Name, " ", "")) },
			Points:  40,
			Reason:  "Invalid name - contains numbers or symbols",
		},
		{
			Name:    "aadhaar_format",
			Applies: func(in Input) bool { return !isAadhaar(in.AadhaarNumber) },
			Points:  40,
			Reason:  "Invalid Aadhaar format",
		},
		{
			Name:    "underage",
			Applies: func(in Input) bool { return in.Age < 18 },
			Points:  30,
			Reason:  "Applicant is underage",
		},
		{
			Name: "district_aadhaar_mismatch",
			Applies: func(in Input) bool {
				prefix, ok := prefixes[in.District]
				return ok && !strings.HasPrefix(in.AadhaarNumber, prefix)
			},
			Points: 30,
			Reason: "District-Aadhaar mismatch",
		},
		{
			Name:    "high_risk_district",
			Applies: func(in Input) bool { return in.DistrictRisk == districts.RiskHigh },
			Points:  25,
			Reason:  "High risk district based on UIDAI enrollment data",
		},
		{
			Name:    "unverified_district",
			Applies: func(in Input) bool { return in.DistrictRisk == districts.RiskUnknown },
			Points:  15,
			Reason:  "District not in UIDAI dataset - unverified region",
		},
	}
}

// Evaluate scores an applicant and appends advisory document-check reasons.
func (e *Evaluator) Evaluate(applicant models.ApplicantInput, facts models.DocumentFacts) Evaluation {
	in := Input{ApplicantInput: applicant, DistrictRisk: e.table.Lookup(applicant.District)}

	score := 0
	reasons := make([]string, 0, len(e.rules)+3)
	for _, r := range e.rules {
		if r.Applies(in) {
			score += r.Points
			reasons = append(reasons, r.Reason)
		}
	}

	if !facts.AadhaarFound {
		reasons = append(reasons, ReasonOCRAadhaarMissing)
	}
	if !facts.NameFound {
		reasons = append(reasons, ReasonOCRNameMissing)
	}
	if !facts.FaceDetected {
		reasons = append(reasons, ReasonNoFace)
	}

	return Evaluation{
		RiskScore:    score,
		Status:       StatusFromScore(score),
		Reasons:      reasons,
		DistrictRisk: in.DistrictRisk,
	}
}

// StatusFromScore maps a score to a decision.
func StatusFromScore(score int) models.Status {
	switch {
	case score >= RejectThreshold:
		return models.StatusRejected
	case score >= ReviewThreshold:
		return models.StatusReview
	default:
		return models.StatusApproved
	}
}

func hasNonLetter(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func isAadhaar(s string) bool {
	if len(s) != 12 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
