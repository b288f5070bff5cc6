package clients

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"storefront/internal/domain"
)

var (
	_ domain.OrderEventPublisher = (*KafkaOrderProducer)(nil)
	_ domain.OrderEventPublisher = (*LogOrderPublisher)(nil)
)

// messageWriter is the part of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaOrderProducer struct {
	writer messageWriter
	topic  string
	log    *logrus.Logger
}

func NewKafkaOrderProducer(brokers []string, topic string, logger *logrus.Logger) *KafkaOrderProducer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 5 * time.Second,
	}
	logger.Infof("Events: Kafka producer initialized topic=%s brokers=%v", topic, brokers)
	return &KafkaOrderProducer{writer: w, topic: topic, log: logger}
}

// Publish keys messages by order id so every event of one order lands on one partition.
func (p *KafkaOrderProducer) Publish(ctx context.Context, event domain.OrderEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(event.OrderID, 10)),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(uuid.NewString())},
			{Key: "event-type", Value: []byte(event.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Errorf("Events: Failed to publish %s order=%d topic=%s: %v", event.Type, event.OrderID, p.topic, err)
		return err
	}
	p.log.Infof("Events: Published %s order=%d topic=%s", event.Type, event.OrderID, p.topic)
	return nil
}

func (p *KafkaOrderProducer) Close() error {
	p.log.Infof("Events: Closing Kafka writer topic=%s", p.topic)
	return p.writer.Close()
}

// LogOrderPublisher only logs events. It is used when no brokers are configured.
type LogOrderPublisher struct {
	log *logrus.Logger
}

func NewLogOrderPublisher(logger *logrus.Logger) *LogOrderPublisher {
	return &LogOrderPublisher{log: logger}
}

func (p *LogOrderPublisher) Publish(_ context.Context, event domain.OrderEvent) error {
	p.log.WithFields(logrus.Fields{
		"event":   event.Type,
		"orderId": event.OrderID,
		"userId":  event.UserID,
		"status":  event.Status,
		"total":   event.Total,
	}).Info("Events: Order event")
	return nil
}
