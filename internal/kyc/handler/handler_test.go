package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"securekyc/internal/kyc/handler/mocks"
	"securekyc/internal/kyc/models"
	"securekyc/internal/kyc/service"
	id "securekyc/pkg/domain"
	dErrors "securekyc/pkg/domain-errors"
	"securekyc/pkg/platform/middleware/auth"
	"securekyc/pkg/testutil"
)

type rejectAll struct{}

func (rejectAll) ValidateToken(string) (*auth.JWTClaims, error) {
	return nil, errors.New("invalid token")
}

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	handler *Handler
	userID  id.UserID
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.handler = New(s.service, rejectAll{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.userID = id.NewUserID()
}

func (s *HandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *HandlerSuite) authed(req *http.Request) *http.Request {
	return testutil.WithAuth(req, s.userID, "ravi@example.com")
}

func validBody() map[string]any {
	return map[string]any{
		"name":              "Ravi Kumar",
		"aadhaar_number":    "110000000000",
		"district":          "Chennai",
		"age":               30,
		"ocr_aadhaar_found": true,
		"ocr_name_found":    true,
		"face_detected":     false,
		"ocr_flags":         "glare",
	}
}

func (s *HandlerSuite) TestSubmit() {
	s.Run("passes applicant and facts through and renders result", func() {
		subID := id.NewSubmissionID()
		s.service.EXPECT().
			Submit(gomock.Any(), s.userID, models.ApplicantInput{
				Name: "Ravi Kumar", AadhaarNumber: "110000000000", District: "Chennai", Age: 30,
			}, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.UserID, _ models.ApplicantInput, facts models.DocumentFacts) (*models.Result, error) {
				s.True(facts.AadhaarFound)
				s.True(facts.NameFound)
				s.False(facts.FaceDetected)
				s.Require().NotNil(facts.Flags)
				s.Equal("glare", *facts.Flags)
				return &models.Result{
					SubmissionID:  subID,
					Status:        models.StatusApproved,
					RiskScore:     0,
					Reasons:       nil,
					AttemptNumber: 1,
				}, nil
			})

		rr := testutil.DoRequest(http.HandlerFunc(s.handler.HandleSubmit),
			s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/kyc/submit", validBody())))

		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[ResultResponse](s.T(), rr)
		s.Equal(subID.String(), resp.SubmissionID)
		s.Equal("APPROVED", resp.VerificationStatus)
		s.NotNil(resp.Reasons)
		s.Empty(resp.Reasons)
		s.Equal(1, resp.AttemptNumber)
	})

	s.Run("malformed json is a bad request", func() {
		req := httptest.NewRequest(http.MethodPost, "/kyc/submit", strings.NewReader(`{"name":`))
		rr := testutil.DoRequest(http.HandlerFunc(s.handler.HandleSubmit), s.authed(req))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("non-integer age is a bad request", func() {
		body := validBody()
		body["age"] = "thirty"
		rr := testutil.DoRequest(http.HandlerFunc(s.handler.HandleSubmit),
			s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/kyc/submit", body)))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("missing age is a validation error", func() {
		body := validBody()
		delete(body, "age")
		rr := testutil.DoRequest(http.HandlerFunc(s.handler.HandleSubmit),
			s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/kyc/submit", body)))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("oversized name is a validation error", func() {
		body := validBody()
		body["name"] = strings.Repeat("a", maxFieldLen+1)
		rr := testutil.DoRequest(http.HandlerFunc(s.handler.HandleSubmit),
			s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/kyc/submit", body)))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("implausible values are scored, not refused", func() {
		body := validBody()
		body["name"] = "R2"
		body["aadhaar_number"] = "abc"
		body["age"] = -4
		s.service.EXPECT().Submit(gomock.Any(), s.userID, gomock.Any(), gomock.Any()).
			Return(&models.Result{Status: models.StatusRejected, RiskScore: 150, AttemptNumber: 1}, nil)

		rr := testutil.DoRequest(http.HandlerFunc(s.handler.HandleSubmit),
			s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/kyc/submit", body)))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
	})

	s.Run("missing user in context is an internal error", func() {
		rr := testutil.DoRequest(http.HandlerFunc(s.handler.HandleSubmit),
			testutil.NewJSONRequest(s.T(), http.MethodPost, "/kyc/submit", validBody()))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusInternalServerError, "internal_error")
	})
}

func (s *HandlerSuite) TestResubmit() {
	s.Run("max attempts maps to 409 with message", func() {
		s.service.EXPECT().Resubmit(gomock.Any(), s.userID, gomock.Any(), gomock.Any()).
			Return(nil, service.ErrMaxAttemptsExceeded)

		rr := testutil.DoRequest(http.HandlerFunc(s.handler.HandleResubmit),
			s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/kyc/resubmit", validBody())))

		testutil.AssertStatus(s.T(), rr, http.StatusConflict)
		errResp := testutil.UnmarshalErrorResponse(s.T(), rr)
		s.Equal("max_attempts_exceeded", errResp["error"])
		s.Equal("Maximum resubmission attempts reached", errResp["error_description"])
	})

	s.Run("timeout maps to 504", func() {
		s.service.EXPECT().Resubmit(gomock.Any(), s.userID, gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeTimeout, "request timed out"))

		rr := testutil.DoRequest(http.HandlerFunc(s.handler.HandleResubmit),
			s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/kyc/resubmit", validBody())))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusGatewayTimeout, "timeout")
	})

	s.Run("internal errors hide their description", func() {
		s.service.EXPECT().Resubmit(gomock.Any(), s.userID, gomock.Any(), gomock.Any()).
			Return(nil, dErrors.Wrap(errors.New("pq: connection refused"), dErrors.CodeInternal, "failed to save"))

		rr := testutil.DoRequest(http.HandlerFunc(s.handler.HandleResubmit),
			s.authed(testutil.NewJSONRequest(s.T(), http.MethodPost, "/kyc/resubmit", validBody())))
		testutil.AssertStatus(s.T(), rr, http.StatusInternalServerError)
		errResp := testutil.UnmarshalErrorResponse(s.T(), rr)
		s.Equal("internal_error", errResp["error"])
		s.NotContains(errResp, "error_description")
	})
}

func (s *HandlerSuite) TestStatus() {
	s.Run("no record is 404", func() {
		s.service.EXPECT().LatestStatus(gomock.Any(), s.userID).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "No KYC record found"))

		rr := testutil.DoRequest(http.HandlerFunc(s.handler.HandleStatus),
			s.authed(httptest.NewRequest(http.MethodGet, "/kyc/status", nil)))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})

	s.Run("latest status", func() {
		at := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
		s.service.EXPECT().LatestStatus(gomock.Any(), s.userID).
			Return(&models.LatestStatus{Status: models.StatusReview, AttemptNumber: 2, SubmittedAt: at}, nil)

		rr := testutil.DoRequest(http.HandlerFunc(s.handler.HandleStatus),
			s.authed(httptest.NewRequest(http.MethodGet, "/kyc/status", nil)))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[StatusResponse](s.T(), rr)
		s.Equal("REVIEW", resp.Status)
		s.Equal(2, resp.AttemptNumber)
		s.True(at.Equal(resp.SubmittedAt))
	})
}

func (s *HandlerSuite) TestHistory() {
	rec := &models.Submission{
		ID:             id.NewSubmissionID(),
		UserID:         s.userID,
		Applicant:      models.ApplicantInput{Name: "Ravi Kumar", AadhaarNumber: "110000000000", District: "Chennai", Age: 30},
		RiskScore:      40,
		Status:         models.StatusReview,
		Reasons:        []string{"Invalid name - contains numbers or symbols"},
		AttemptNumber:  1,
		SubmissionDate: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	h := &models.History{Records: []*models.Submission{rec}}
	h.Add(rec.Status)
	s.service.EXPECT().History(gomock.Any(), s.userID).Return(h, nil)

	rr := testutil.DoRequest(http.HandlerFunc(s.handler.HandleHistory),
		s.authed(httptest.NewRequest(http.MethodGet, "/kyc/history", nil)))

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	body := string(testutil.ReadBody(s.T(), rr))
	s.NotContains(body, "110000000000", "aadhaar numbers are never echoed")
	s.Contains(body, `"total":1`)
	s.Contains(body, `"review":1`)
	s.Contains(body, `"district":"Chennai"`)
	s.Contains(body, `"attempt_number":1`)
}

func (s *HandlerSuite) TestRoutesRequireBearerToken() {
	r := chi.NewRouter()
	s.handler.Register(r)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/kyc/submit"},
		{http.MethodPost, "/kyc/resubmit"},
		{http.MethodGet, "/kyc/status"},
		{http.MethodGet, "/kyc/history"},
	} {
		s.Run(tc.path, func() {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			req.Header.Set("Authorization", "Bearer nope")
			rr := testutil.DoRequest(r, req)
			testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
		})
	}
}
