//go:build integration

package notify_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"securekyc/internal/kyc/models"
	"securekyc/internal/kyc/notify"
	id "securekyc/pkg/domain"
	"securekyc/pkg/testutil/containers"
)

type KafkaChannelSuite struct {
	suite.Suite
	brokers []string
}

func TestKafkaChannelSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaChannelSuite))
}

func (s *KafkaChannelSuite) SetupSuite() {
	s.brokers = containers.GetManager().GetRedpanda(s.T()).Brokers
}

func (s *KafkaChannelSuite) TestPublishesDecisionEvent() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	topic := "kyc.decision." + id.NewUserID().String()
	ch, err := notify.NewKafkaChannel(ctx, s.brokers, topic)
	s.Require().NoError(err)
	s.Require().NotNil(ch)
	defer ch.Close()

	// A second channel on the same topic must tolerate the existing topic.
	again, err := notify.NewKafkaChannel(ctx, s.brokers, topic)
	s.Require().NoError(err)
	again.Close()

	notice := models.DecisionNotice{
		SubmissionID:  id.NewSubmissionID(),
		UserID:        id.NewUserID(),
		Operation:     models.OperationSubmit,
		Status:        models.StatusApproved,
		AttemptNumber: 1,
		DecidedAt:     time.Now(),
	}
	s.Require().NoError(ch.Send(ctx, notice))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().Empty(fetches.Errors())

	var records []*kgo.Record
	fetches.EachRecord(func(r *kgo.Record) { records = append(records, r) })
	s.Require().Len(records, 1)
	s.Equal(notice.UserID.String(), string(records[0].Key))

	var event struct {
		EventType string `json:"event_type"`
		Payload   struct {
			SubmissionID string `json:"submission_id"`
			Status       string `json:"status"`
		} `json:"payload"`
	}
	s.Require().NoError(json.Unmarshal(records[0].Value, &event))
	s.Equal("kyc.decision", event.EventType)
	s.Equal(notice.SubmissionID.String(), event.Payload.SubmissionID)
	s.Equal("APPROVED", event.Payload.Status)
}
