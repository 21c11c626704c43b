// Package messaging publishes engine events queued in the outbox.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"fabprogress/internal/config"
)

const headerEventType = "event_type"

type Publisher struct {
	log    *slog.Logger
	writer *kafka.Writer
}

// NewPublisher checks that a broker is reachable, makes sure the topic
// exists and returns a publisher writing to the configured brokers.
func NewPublisher(ctx context.Context, log *slog.Logger, cfg config.Kafka) (*Publisher, error) {
	const op = "messaging.NewPublisher"

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("%s: no kafka brokers configured", op)
	}

	var (
		conn    *kafka.Conn
		connErr error
	)
	for _, broker := range cfg.Brokers {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		conn, connErr = kafka.DialContext(dialCtx, "tcp", broker)
		cancel()
		if connErr == nil {
			log.Info("kafka connected", slog.String("broker", broker))
			break
		}
	}
	if connErr != nil {
		return nil, fmt.Errorf("%s: %w", op, connErr)
	}
	ensureTopic(log, conn, cfg.Topic)
	conn.Close()

	return &Publisher{
		log: log,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			WriteTimeout: 10 * time.Second,
		},
	}, nil
}

// ensureTopic creates the topic through the controller. Failures are logged
// only; brokers may auto-create topics.
func ensureTopic(log *slog.Logger, conn *kafka.Conn, topic string) {
	controller, err := conn.Controller()
	if err != nil {
		log.Warn("kafka controller lookup failed", slog.String("error", err.Error()))
		return
	}

	cc, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		log.Warn("kafka controller dial failed", slog.String("error", err.Error()))
		return
	}
	defer cc.Close()

	if err := cc.CreateTopics(kafka.TopicConfig{Topic: topic, NumPartitions: 3, ReplicationFactor: 1}); err != nil {
		log.Warn("kafka topic create", slog.String("topic", topic), slog.String("error", err.Error()))
	}
}

// Publish writes one message keyed by assembly id so that events of an
// assembly stay ordered within a partition.
func (p *Publisher) Publish(ctx context.Context, topic, key, eventType string, payload []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   payload,
		Headers: []kafka.Header{{Key: headerEventType, Value: []byte(eventType)}},
	})
	if err != nil {
		return fmt.Errorf("messaging.Publish: %s: %w", topic, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
