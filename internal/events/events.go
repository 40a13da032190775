// Package events публикует события заказов в Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/mmeshcher/bingsu-order-system/internal/model"
)

// Типы событий заказа.
const (
	OrderCreated        = "order.created"
	OrderStatusChanged  = "order.status_changed"
	OrderPaymentChanged = "order.payment_changed"
)

// OrderEvent описывает сообщение об изменении заказа.
type OrderEvent struct {
	Type             string              `json:"type"`
	OrderID          string              `json:"orderId"`
	TrackingCode     string              `json:"trackingCode"`
	Status           model.OrderStatus   `json:"status"`
	PaymentStatus    model.PaymentStatus `json:"paymentStatus"`
	Total            int                 `json:"total"`
	IsFreeRedemption bool                `json:"isFreeRedemption"`
	OccurredAt       time.Time           `json:"occurredAt"`
}

// NewOrderEvent собирает событие из текущего состояния заказа.
func NewOrderEvent(eventType string, o *model.Order, at time.Time) OrderEvent {
	return OrderEvent{
		Type:             eventType,
		OrderID:          o.ID,
		TrackingCode:     o.TrackingCode,
		Status:           o.Status,
		PaymentStatus:    o.PaymentStatus,
		Total:            o.Pricing.Total,
		IsFreeRedemption: o.IsFreeRedemption,
		OccurredAt:       at,
	}
}

// Publisher отправляет события заказов.
type Publisher interface {
	Publish(ctx context.Context, e OrderEvent) error
	Close() error
}

// SaramaPublisher отправляет события через синхронного продюсера Kafka.
// Ключом сообщения служит идентификатор заказа, поэтому события одного заказа попадают в одну партицию.
type SaramaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// NewProducerConfig возвращает настройки продюсера, с которыми работает SaramaPublisher.
func NewProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true
	cfg.Producer.Timeout = 5 * time.Second
	return cfg
}

// NewSaramaPublisher подключается к брокерам и создаёт издателя.
func NewSaramaPublisher(brokers []string, topic string, logger *zap.Logger) (*SaramaPublisher, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("start kafka producer: %w", err)
	}
	return NewSaramaPublisherWithProducer(producer, topic, logger), nil
}

// NewSaramaPublisherWithProducer создаёт издателя поверх готового продюсера.
func NewSaramaPublisherWithProducer(producer sarama.SyncProducer, topic string, logger *zap.Logger) *SaramaPublisher {
	return &SaramaPublisher{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

// Publish сериализует событие в JSON и дожидается подтверждения брокера.
func (p *SaramaPublisher) Publish(ctx context.Context, e OrderEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(e.OrderID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(e.Type)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("send order event: %w", err)
	}

	p.logger.Debug("order event published",
		zap.String("type", e.Type),
		zap.String("order_id", e.OrderID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// Close закрывает продюсер.
func (p *SaramaPublisher) Close() error {
	return p.producer.Close()
}

// NopPublisher отбрасывает события. Используется, когда брокеры Kafka не настроены.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, OrderEvent) error { return nil }

func (NopPublisher) Close() error { return nil }
