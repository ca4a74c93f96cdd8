package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel/trace"

	"securekyc/internal/kyc/models"
)

const (
	decisionEventType = "kyc.decision"
	schemaVersion     = "1.0"
)

type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaChannel publishes decision events keyed by user ID.
type KafkaChannel struct {
	producer producer
	client   *kgo.Client
	topic    string
}

type eventEnvelope struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Payload   decisionPayload   `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type decisionPayload struct {
	SubmissionID  string   `json:"submission_id"`
	Operation     string   `json:"operation"`
	Status        string   `json:"status"`
	RiskScore     int      `json:"risk_score"`
	Reasons       []string `json:"reasons"`
	AttemptNumber int      `json:"attempt_number"`
}

// NewKafkaChannel connects to brokers and makes sure topic exists. It returns
// nil, nil when no brokers are configured.
func NewKafkaChannel(ctx context.Context, brokers []string, topic string) (*KafkaChannel, error) {
	if len(brokers) == 0 {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	if err := ensureTopic(ctx, kadm.NewClient(client), topic); err != nil {
		client.Close()
		return nil, err
	}
	return &KafkaChannel{producer: client, client: client, topic: topic}, nil
}

func ensureTopic(ctx context.Context, adm *kadm.Client, topic string) error {
	resp, err := adm.CreateTopics(ctx, 1, 1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

func (c *KafkaChannel) Name() string { return "kafka" }

func (c *KafkaChannel) Send(ctx context.Context, notice models.DecisionNotice) error {
	value, err := encodeDecision(ctx, notice)
	if err != nil {
		return err
	}
	record := &kgo.Record{
		Topic: c.topic,
		Key:   []byte(notice.UserID.String()),
		Value: value,
	}
	if err := c.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce decision event: %w", err)
	}
	return nil
}

// Close releases the Kafka client.
func (c *KafkaChannel) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

func encodeDecision(ctx context.Context, notice models.DecisionNotice) ([]byte, error) {
	metadata := map[string]string{"service": "securekyc"}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	reasons := notice.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	envelope := eventEnvelope{
		EventID:   uuid.NewString(),
		EventType: decisionEventType,
		UserID:    notice.UserID.String(),
		Timestamp: notice.DecidedAt.UTC(),
		Version:   schemaVersion,
		Payload: decisionPayload{
			SubmissionID:  notice.SubmissionID.String(),
			Operation:     string(notice.Operation),
			Status:        string(notice.Status),
			RiskScore:     notice.RiskScore,
			Reasons:       reasons,
			AttemptNumber: notice.AttemptNumber,
		},
		Metadata: metadata,
	}

	b, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("marshal decision event: %w", err)
	}
	return b, nil
}
