// Package notify is the Factory's async event notifier: a
// fire-and-forget Kafka producer that mirrors large ledger movements and
// deployment-state transitions out to downstream consumers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Event is the envelope every notification is published as.
type Event struct {
	Kind         string    `json:"kind"`
	Owner        string    `json:"owner"`
	DeploymentID string    `json:"deployment_id,omitempty"`
	Amount       int64     `json:"amount,omitempty"`
	Status       string    `json:"status,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Producer publishes Events to Kafka, best-effort.
type Producer struct {
	writer    *kafka.Writer
	threshold int64
	logger    *logrus.Logger
}

// NewProducer creates a new Kafka producer for the factory-events topic.
func NewProducer(brokers []string, topic string, threshold float64, logger *logrus.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Compression:  kafka.Snappy,
		BatchTimeout: 10 * time.Millisecond,
	}

	logger.Infof("Kafka producer initialized for topic: %s", topic)

	return &Producer{
		writer:    writer,
		threshold: int64(threshold),
		logger:    logger,
	}
}

// NotifyLedgerMovement publishes a deposit/withdraw/fee/refund event if
// its amount meets the configured notify threshold.
func (p *Producer) NotifyLedgerMovement(ctx context.Context, owner, kind string, amount int64) error {
	if amount < p.threshold {
		p.logger.Debugf("Amount %d is below threshold %d, skipping notification", amount, p.threshold)
		return nil
	}
	return p.publish(ctx, owner, Event{Kind: kind, Owner: owner, Amount: amount, Timestamp: time.Now()})
}

// NotifyDeploymentTransition publishes every deployment state change
// unconditionally — these are operationally interesting regardless of size.
func (p *Producer) NotifyDeploymentTransition(ctx context.Context, owner, deploymentID, status string) error {
	return p.publish(ctx, owner, Event{
		Kind:         "deployment_transition",
		Owner:        owner,
		DeploymentID: deploymentID,
		Status:       status,
		Timestamp:    time.Now(),
	})
}

func (p *Producer) publish(ctx context.Context, key string, evt Event) error {
	messageBytes, err := json.Marshal(evt)
	if err != nil {
		p.logger.Errorf("Failed to marshal notification: %v", err)
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: messageBytes,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Errorf("Failed to send notification to Kafka: %v", err)
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.logger.Infof("Published %s notification: owner=%s", evt.Kind, evt.Owner)
	return nil
}

// Close closes the underlying Kafka writer.
func (p *Producer) Close() error {
	if p.writer != nil {
		p.logger.Info("Closing Kafka producer")
		return p.writer.Close()
	}
	return nil
}
