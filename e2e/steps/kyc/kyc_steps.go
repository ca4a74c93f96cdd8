package kyc

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GET(path string) error
	GETAdmin(path, token string) error
	GetLastResponseBody() []byte
	AdminToken() string
}

// RegisterSteps registers KYC and admin step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &kycSteps{tc: tc}

	ctx.Step(`^I submit KYC with name "([^"]*)"$`, steps.submitWithName)
	ctx.Step(`^I resubmit KYC with name "([^"]*)"$`, steps.resubmitWithName)
	ctx.Step(`^I submit KYC with:$`, steps.submitWithTable)
	ctx.Step(`^I submit KYC without an age$`, steps.submitWithoutAge)
	ctx.Step(`^I request my KYC status$`, steps.requestStatus)
	ctx.Step(`^I request my KYC history$`, steps.requestHistory)

	ctx.Step(`^I list all KYC records as admin$`, steps.listAsAdmin)
	ctx.Step(`^I list all KYC records as admin with status "([^"]*)"$`, steps.listAsAdminWithStatus)
	ctx.Step(`^I list all KYC records with admin token "([^"]*)"$`, steps.listWithToken)

	ctx.Step(`^the response should list (\d+) records?$`, steps.shouldListRecords)
	ctx.Step(`^every listed record should have status "([^"]*)"$`, steps.everyRecordHasStatus)
	ctx.Step(`^the reasons should include "([^"]*)"$`, steps.reasonsInclude)
}

type kycSteps struct {
	tc TestContext
}

func applicant(name string) map[string]any {
	return map[string]any{
		"name":              name,
		"aadhaar_number":    "110000000000",
		"district":          "Chennai",
		"age":               30,
		"ocr_aadhaar_found": true,
		"ocr_name_found":    true,
		"face_detected":     true,
	}
}

func (s *kycSteps) submitWithName(ctx context.Context, name string) error {
	return s.tc.POST("/kyc/submit", applicant(name))
}

func (s *kycSteps) resubmitWithName(ctx context.Context, name string) error {
	return s.tc.POST("/kyc/resubmit", applicant(name))
}

// submitWithTable overrides the default applicant with a field|value table.
func (s *kycSteps) submitWithTable(ctx context.Context, table *godog.Table) error {
	body := applicant("Ravi Kumar")
	for _, row := range table.Rows {
		if len(row.Cells) != 2 {
			return fmt.Errorf("expected field|value rows, got %d cells", len(row.Cells))
		}
		field, value := row.Cells[0].Value, row.Cells[1].Value
		switch field {
		case "age":
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("age %q: %w", value, err)
			}
			body[field] = n
		case "ocr_aadhaar_found", "ocr_name_found", "face_detected":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("%s %q: %w", field, value, err)
			}
			body[field] = b
		default:
			body[field] = value
		}
	}
	return s.tc.POST("/kyc/submit", body)
}

func (s *kycSteps) submitWithoutAge(ctx context.Context) error {
	body := applicant("Ravi Kumar")
	delete(body, "age")
	return s.tc.POST("/kyc/submit", body)
}

func (s *kycSteps) requestStatus(ctx context.Context) error {
	return s.tc.GET("/kyc/status")
}

func (s *kycSteps) requestHistory(ctx context.Context) error {
	return s.tc.GET("/kyc/history")
}

func (s *kycSteps) listAsAdmin(ctx context.Context) error {
	return s.tc.GETAdmin("/admin/all-kyc", s.tc.AdminToken())
}

func (s *kycSteps) listAsAdminWithStatus(ctx context.Context, status string) error {
	return s.tc.GETAdmin("/admin/all-kyc?status="+status, s.tc.AdminToken())
}

func (s *kycSteps) listWithToken(ctx context.Context, token string) error {
	return s.tc.GETAdmin("/admin/all-kyc", token)
}

type listing struct {
	Records []struct {
		Status string `json:"status"`
	} `json:"records"`
	Reasons []string `json:"reasons"`
}

func (s *kycSteps) decode() (*listing, error) {
	var l listing
	if err := json.Unmarshal(s.tc.GetLastResponseBody(), &l); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &l, nil
}

func (s *kycSteps) shouldListRecords(ctx context.Context, n int) error {
	l, err := s.decode()
	if err != nil {
		return err
	}
	if len(l.Records) != n {
		return fmt.Errorf("expected %d records, got %d", n, len(l.Records))
	}
	return nil
}

func (s *kycSteps) everyRecordHasStatus(ctx context.Context, status string) error {
	l, err := s.decode()
	if err != nil {
		return err
	}
	for i, rec := range l.Records {
		if rec.Status != status {
			return fmt.Errorf("record %d has status %s, want %s", i, rec.Status, status)
		}
	}
	return nil
}

func (s *kycSteps) reasonsInclude(ctx context.Context, reason string) error {
	l, err := s.decode()
	if err != nil {
		return err
	}
	for _, r := range l.Reasons {
		if r == reason {
			return nil
		}
	}
	return fmt.Errorf("reason %q not in %v", reason, l.Reasons)
}
