// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

// Package events publishes resource change notifications to downstream
// consumers. Notifications are best effort: a failed publish is logged
// and never fails the request that caused it.
package events

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/segmentio/kafka-go"

	"github.com/carevine/carevine/core"
	"github.com/carevine/carevine/core/logger"
)

// Notification is the message body published for every completed
// create, update or delete on a resource.
type Notification struct {
	Resource  string          `json:"resource"`
	Operation core.Operation  `json:"operation"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// KafkaNotifier publishes notifications to a single kafka topic, keyed
// by resource so that per-resource ordering is preserved.
type KafkaNotifier struct {
	writer       *kafka.Writer
	publishLimit time.Duration
	now          func() time.Time
}

// NewKafkaNotifier creates a notifier publishing to topic on the given
// brokers.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
		},
		publishLimit: 5 * time.Second,
		now:          time.Now,
	}
}

// Notify publishes one notification. Errors are logged, not returned:
// the write that triggered the notification already happened.
func (n *KafkaNotifier) Notify(resource string, operation core.Operation, payload []byte) {
	message, err := newMessage(resource, operation, payload, n.now().UTC())
	if err != nil {
		logger.Default().WithError(err).Errorln("cannot compose notification for", resource)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), n.publishLimit)
	defer cancel()
	if err := n.writer.WriteMessages(ctx, message); err != nil {
		logger.Default().WithError(err).Errorln("cannot publish notification for", resource)
	}
}

// Close flushes and closes the underlying writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

func newMessage(resource string, operation core.Operation, payload []byte, timestamp time.Time) (kafka.Message, error) {
	value, err := json.Marshal(Notification{
		Resource:  resource,
		Operation: operation,
		Payload:   payload,
		Timestamp: timestamp,
	})
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(resource),
		Value: value,
	}, nil
}
