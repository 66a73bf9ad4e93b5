package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/noah-isme/gema-evaluator-api/internal/dto"
)

// EventPublisher announces stored evaluations to other services.
type EventPublisher interface {
	PublishEvaluationCompleted(ctx context.Context, evaluation dto.EvaluationResponse) error
}

// NATSEventPublisher publishes evaluation events on a NATS subject.
type NATSEventPublisher struct {
	conn    *nats.Conn
	subject string
	nodeID  string
}

// NewNATSEventPublisher returns nil when no connection is configured so callers
// can skip publishing.
func NewNATSEventPublisher(conn *nats.Conn, subject string) *NATSEventPublisher {
	if conn == nil {
		return nil
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "evaluations.completed"
	}
	return &NATSEventPublisher{conn: conn, subject: subject, nodeID: uuid.NewString()}
}

// PublishEvaluationCompleted implements EventPublisher.
func (p *NATSEventPublisher) PublishEvaluationCompleted(_ context.Context, evaluation dto.EvaluationResponse) error {
	if p == nil {
		return nil
	}
	payload, err := encodeCompletedEvent(p.nodeID, evaluation, time.Now().UTC())
	if err != nil {
		return err
	}
	return p.conn.Publish(p.subject, payload)
}

func encodeCompletedEvent(source string, evaluation dto.EvaluationResponse, sentAt time.Time) ([]byte, error) {
	return json.Marshal(dto.EvaluationCompletedEvent{
		Source:     source,
		Evaluation: evaluation,
		SentAt:     sentAt,
	})
}
