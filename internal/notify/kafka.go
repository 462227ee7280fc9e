// Package notify delivers raised security alerts to the notification topic.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	auditdomain "sessionguard/internal/audit/domain"
)

// KafkaNotifier publishes alerts to a Kafka topic using segmentio/kafka-go. It satisfies
// audit.Notifier: delivery is fire-and-forget and failures never reach the caller.
type KafkaNotifier struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaNotifier creates a notifier writing to topic. Returns nil when brokers or topic
// are unset, which disables notification; a nil notifier is safe to use.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaNotifier{writer: writer, topic: topic}
}

// NotifyAlert serializes the alert as JSON and writes it to the topic. Keyed by alert
// type so entries for one attack pattern land on one partition in order. A short timeout
// keeps a slow broker from blocking alert evaluation.
func (n *KafkaNotifier) NotifyAlert(ctx context.Context, a *auditdomain.SecurityAlert) {
	if n == nil || n.writer == nil || a == nil {
		return
	}
	payload, err := json.Marshal(a)
	if err != nil {
		log.Printf("notify: failed to marshal alert %s: %v", a.ID, err)
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err = n.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(a.AlertType),
		Value: payload,
	})
	if err != nil {
		log.Printf("notify: kafka publish failed for alert %s: %v", a.ID, err)
	}
}

// Close closes the underlying writer. Safe to call multiple times or on nil.
func (n *KafkaNotifier) Close() error {
	if n == nil || n.writer == nil {
		return nil
	}
	return n.writer.Close()
}
