package fraud

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATS subjects for the analyst review queue.
const (
	SubjectAlertsReview = "nexus.alerts.review"
	SubjectAlertsBlock  = "nexus.alerts.block"
)

// NATSAlertPublisher pushes fraud alerts onto the analyst queue over NATS.
type NATSAlertPublisher struct {
	conn *nats.Conn
}

var _ AlertPublisher = (*NATSAlertPublisher)(nil)

// NewNATSAlertPublisher creates an alert publisher over an existing NATS
// connection.
func NewNATSAlertPublisher(conn *nats.Conn) *NATSAlertPublisher {
	return &NATSAlertPublisher{conn: conn}
}

// PublishAlert publishes the evaluation to the subject matching its decision.
func (p *NATSAlertPublisher) PublishAlert(_ context.Context, eval *FraudEvaluation) error {
	subject := SubjectAlertsReview
	if eval.Score.Decision == DecisionBlock {
		subject = SubjectAlertsBlock
	}

	payload, err := json.Marshal(eval)
	if err != nil {
		return fmt.Errorf("marshal fraud alert: %w", err)
	}

	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish fraud alert: %w", err)
	}
	return nil
}

// NoopAlertPublisher is used in dev mode and tests where no queue exists.
type NoopAlertPublisher struct{}

var _ AlertPublisher = NoopAlertPublisher{}

// PublishAlert discards the alert.
func (NoopAlertPublisher) PublishAlert(context.Context, *FraudEvaluation) error {
	return nil
}
