package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,Notifier,AuditPublisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"securekyc/internal/kyc/districts"
	"securekyc/internal/kyc/metrics"
	"securekyc/internal/kyc/models"
	"securekyc/internal/kyc/rules"
	"securekyc/internal/kyc/service/mocks"
	"securekyc/internal/kyc/store"
	id "securekyc/pkg/domain"
	dErrors "securekyc/pkg/domain-errors"
	"securekyc/pkg/platform/audit"
	"securekyc/pkg/platform/audit/publisher"
	auditmemory "securekyc/pkg/platform/audit/store/memory"
	"securekyc/pkg/platform/sentinel"
	"securekyc/pkg/requestcontext"
)

// =============================================================================
// KYC Service Test Suite
// =============================================================================
// Runs the service against the in-memory store and the real rule set so the
// resubmission state machine is exercised end to end. Notifications use a
// gomock notifier to pin what is delivered and when.

var (
	cleanApplicant = models.ApplicantInput{
		Name: "Ravi Kumar", AadhaarNumber: "110000000000", District: "Chennai", Age: 30,
	}
	rejectedApplicant = models.ApplicantInput{
		Name: "R1", AadhaarNumber: "110000000000", District: "Chennai", Age: 30,
	}
	allFacts = models.DocumentFacts{AadhaarFound: true, NameFound: true, FaceDetected: true}
)

type ServiceSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	notifier *mocks.MockNotifier
	store    *store.InMemoryStore
	audits   *auditmemory.InMemoryStore
	metrics  *metrics.Metrics
	service  *Service
	userID   id.UserID
	ctx      context.Context
	now      time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.store = store.NewInMemory(nil)
	s.audits = auditmemory.NewInMemoryStore()
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	s.service = New(
		s.store,
		NewShardedTx(time.Second),
		rules.NewEvaluator(districts.Default(), rules.DefaultPrefixes()),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithNotifier(s.notifier),
		WithAuditPublisher(publisher.NewPublisher(s.audits)),
	)
	s.userID = id.NewUserID()
	s.now = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = s.requestAt(s.now)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) requestAt(t time.Time) context.Context {
	ctx := requestcontext.WithUserID(context.Background(), s.userID)
	ctx = requestcontext.WithEmail(ctx, "ravi@example.com")
	ctx = requestcontext.WithRequestID(ctx, "req-1")
	return requestcontext.WithTime(ctx, t)
}

func (s *ServiceSuite) expectNotify(times int) {
	s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).Times(times)
}

func (s *ServiceSuite) records() []*models.Submission {
	recs, err := s.store.ListByUser(context.Background(), s.userID, nil)
	s.Require().NoError(err)
	return recs
}

func (s *ServiceSuite) seedRejected(n int) {
	for i := range n {
		s.Require().NoError(s.store.Create(context.Background(), &models.Submission{
			ID:             id.NewSubmissionID(),
			UserID:         s.userID,
			Applicant:      rejectedApplicant,
			RiskScore:      80,
			Status:         models.StatusRejected,
			AttemptNumber:  i + 1,
			SubmissionDate: s.now.Add(-time.Duration(n-i) * time.Hour),
		}))
	}
}

// =============================================================================
// Submit
// =============================================================================

func (s *ServiceSuite) TestSubmitCreatesAttemptOne() {
	s.expectNotify(1)

	result, err := s.service.Submit(s.ctx, s.userID, cleanApplicant, allFacts)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, result.Status)
	s.Equal(0, result.RiskScore)
	s.Equal(1, result.AttemptNumber)
	s.Empty(result.Reasons)

	recs := s.records()
	s.Require().Len(recs, 1)
	s.Equal(result.SubmissionID, recs[0].ID)
	s.True(s.now.Equal(recs[0].SubmissionDate))
}

func (s *ServiceSuite) TestSubmitAlwaysCreates() {
	s.expectNotify(2)

	_, err := s.service.Submit(s.ctx, s.userID, rejectedApplicant, allFacts)
	s.Require().NoError(err)
	_, err = s.service.Submit(s.requestAt(s.now.Add(time.Minute)), s.userID, rejectedApplicant, allFacts)
	s.Require().NoError(err)

	recs := s.records()
	s.Require().Len(recs, 2)
	for _, r := range recs {
		s.Equal(1, r.AttemptNumber)
		s.Equal(models.StatusRejected, r.Status)
	}
}

func (s *ServiceSuite) TestSubmitRequiresUser() {
	_, err := s.service.Submit(s.ctx, id.UserID{}, cleanApplicant, allFacts)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	s.Empty(s.records())
}

func (s *ServiceSuite) TestSubmitEmitsAuditAndMetrics() {
	s.expectNotify(1)
	ctx := requestcontext.WithClientMetadata(s.ctx, "10.0.0.1", "curl/8", "curl on Linux")

	result, err := s.service.Submit(ctx, s.userID, cleanApplicant, allFacts)
	s.Require().NoError(err)

	events, err := s.audits.ListByUser(context.Background(), s.userID)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	ev := events[0]
	s.Equal(string(audit.EventKYCSubmitted), ev.Action)
	s.Equal(result.SubmissionID.String(), ev.Subject)
	s.Equal("APPROVED", ev.Decision)
	s.Equal("ravi@example.com", ev.Email)
	s.Equal("req-1", ev.RequestID)
	s.Equal("10.0.0.1", ev.ClientIP)
	s.Equal("curl on Linux", ev.Device)

	s.Equal(1.0, promtest.ToFloat64(s.metrics.Decisions.WithLabelValues("APPROVED", "submit")))
}

func (s *ServiceSuite) TestSubmitStoreFailure() {
	failing := mocks.NewMockStore(s.ctrl)
	failing.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("disk on fire"))
	svc := New(failing, NewShardedTx(time.Second),
		rules.NewEvaluator(districts.Default(), rules.DefaultPrefixes()),
		WithNotifier(s.notifier))

	_, err := svc.Submit(s.ctx, s.userID, cleanApplicant, allFacts)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

// =============================================================================
// Resubmit
// =============================================================================

func (s *ServiceSuite) TestResubmitOverwritesLatestRejected() {
	s.expectNotify(2)

	first, err := s.service.Submit(s.ctx, s.userID, rejectedApplicant, allFacts)
	s.Require().NoError(err)

	later := s.now.Add(time.Hour)
	result, err := s.service.Resubmit(s.requestAt(later), s.userID, cleanApplicant, allFacts)
	s.Require().NoError(err)
	s.Equal(first.SubmissionID, result.SubmissionID)
	s.Equal(2, result.AttemptNumber)
	s.Equal(models.StatusApproved, result.Status)

	recs := s.records()
	s.Require().Len(recs, 1)
	s.Equal(models.StatusApproved, recs[0].Status)
	s.Equal(cleanApplicant, recs[0].Applicant)
	s.True(later.Equal(recs[0].SubmissionDate))
}

func (s *ServiceSuite) TestResubmitAttemptCapsAtMaximum() {
	s.expectNotify(4)

	_, err := s.service.Submit(s.ctx, s.userID, rejectedApplicant, allFacts)
	s.Require().NoError(err)

	want := []int{2, 3, 3}
	for i, attempt := range want {
		result, err := s.service.Resubmit(s.requestAt(s.now.Add(time.Duration(i+1)*time.Hour)), s.userID, rejectedApplicant, allFacts)
		s.Require().NoError(err)
		s.Equal(attempt, result.AttemptNumber)
		s.Equal(models.StatusRejected, result.Status)
	}
	s.Len(s.records(), 1, "resubmissions of a rejected record never add rows")
}

func (s *ServiceSuite) TestResubmitRefusedAfterThreeRejections() {
	s.seedRejected(3)
	before := s.records()

	_, err := s.service.Resubmit(s.ctx, s.userID, cleanApplicant, allFacts)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeMaxAttemptsExceeded))
	s.Equal("Maximum resubmission attempts reached", err.Error())

	s.Equal(before, s.records(), "refused resubmission must not touch the store")
	s.Equal(1.0, promtest.ToFloat64(s.metrics.ResubmitRefused))

	events, err := s.audits.ListByUser(context.Background(), s.userID)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(string(audit.EventKYCResubmitRefused), events[0].Action)
}

func (s *ServiceSuite) TestResubmitWithoutRejectedCreatesNewRecord() {
	s.expectNotify(2)

	first, err := s.service.Submit(s.ctx, s.userID, cleanApplicant, allFacts)
	s.Require().NoError(err)

	result, err := s.service.Resubmit(s.requestAt(s.now.Add(time.Hour)), s.userID, cleanApplicant, allFacts)
	s.Require().NoError(err)
	s.NotEqual(first.SubmissionID, result.SubmissionID)
	s.Equal(1, result.AttemptNumber)
	s.Len(s.records(), 2)
}

func (s *ServiceSuite) TestResubmitConcurrentSameUser() {
	s.seedRejected(1)
	s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.Resubmit(s.ctx, s.userID, rejectedApplicant, allFacts)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		s.NoError(err)
	}
	recs := s.records()
	s.Require().Len(recs, 1)
	s.Equal(models.MaxAttempts, recs[0].AttemptNumber)
}

// =============================================================================
// Notifications
// =============================================================================

func (s *ServiceSuite) TestNotificationFailureIsSwallowed() {
	s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(errors.New("smtp down"))

	result, err := s.service.Submit(s.ctx, s.userID, cleanApplicant, allFacts)
	s.Require().NoError(err)
	s.NotNil(result)
	s.Len(s.records(), 1)
}

func (s *ServiceSuite) TestNotificationOutlivesRequestCancellation() {
	ctx, cancel := context.WithCancel(s.ctx)

	s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(nctx context.Context, notice models.DecisionNotice) error {
			cancel()
			s.NoError(nctx.Err())
			_, ok := nctx.Deadline()
			s.True(ok)
			s.Equal("ravi@example.com", notice.Email)
			s.Equal(models.OperationSubmit, notice.Operation)
			s.Equal(models.StatusApproved, notice.Status)
			return nil
		})

	_, err := s.service.Submit(ctx, s.userID, cleanApplicant, allFacts)
	s.Require().NoError(err)
}

// =============================================================================
// Queries
// =============================================================================

func (s *ServiceSuite) TestHistory() {
	s.Run("no records yields empty list and zero totals", func() {
		h, err := s.service.History(s.ctx, s.userID)
		s.Require().NoError(err)
		s.NotNil(h.Records)
		s.Empty(h.Records)
		s.Equal(0, h.Total)
	})

	s.Run("counts by status, newest first", func() {
		s.expectNotify(3)
		_, err := s.service.Submit(s.ctx, s.userID, cleanApplicant, allFacts)
		s.Require().NoError(err)
		_, err = s.service.Submit(s.requestAt(s.now.Add(time.Minute)), s.userID, rejectedApplicant, allFacts)
		s.Require().NoError(err)
		_, err = s.service.Submit(s.requestAt(s.now.Add(2*time.Minute)), s.userID,
			models.ApplicantInput{Name: "Ravi1", AadhaarNumber: "110000000000", District: "Chennai", Age: 30}, allFacts)
		s.Require().NoError(err)

		h, err := s.service.History(s.ctx, s.userID)
		s.Require().NoError(err)
		s.Equal(3, h.Total)
		s.Equal(1, h.Approved)
		s.Equal(1, h.Review)
		s.Equal(1, h.Rejected)
		s.Equal(models.StatusReview, h.Records[0].Status)
	})
}

func (s *ServiceSuite) TestLatestStatus() {
	_, err := s.service.LatestStatus(s.ctx, s.userID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	s.expectNotify(2)
	_, err = s.service.Submit(s.ctx, s.userID, rejectedApplicant, allFacts)
	s.Require().NoError(err)
	_, err = s.service.Submit(s.requestAt(s.now.Add(time.Minute)), s.userID, cleanApplicant, allFacts)
	s.Require().NoError(err)

	latest, err := s.service.LatestStatus(s.ctx, s.userID)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, latest.Status)
	s.Equal(1, latest.AttemptNumber)
}

func TestTranslate(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want dErrors.Code
	}{
		{"domain error passes through", ErrMaxAttemptsExceeded, dErrors.CodeMaxAttemptsExceeded},
		{"deadline becomes timeout", context.DeadlineExceeded, dErrors.CodeTimeout},
		{"not found sentinel", sentinel.ErrNotFound, dErrors.CodeNotFound},
		{"anything else is internal", errors.New("boom"), dErrors.CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := dErrors.CodeOf(translate(tc.err, "msg")); got != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}
