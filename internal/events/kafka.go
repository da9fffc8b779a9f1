// Package events публикует события движка во внешний брокер.
package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"

	"groupbuy/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrDisabled брокеры не настроены
var ErrDisabled = errors.New("kafka disabled")

// Типы событий
const (
	TypeOrderTransition = "order.transition"
	TypePoolUpdated     = "pool.updated"
)

// DefaultTopic топик по умолчанию
const DefaultTopic = "groupbuy.events"

// Envelope формат сообщения в топике
type Envelope struct {
	Type       string                  `json:"type"`
	Transition *models.TransitionEvent `json:"transition,omitempty"`
	Pool       *models.PoolGroup       `json:"pool,omitempty"`
	SentAt     time.Time               `json:"sent_at"`
}

// messageWriter - часть *kafka.Writer, которой пользуется publisher
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher реализует service.EventPublisher.
// Ключ сообщения - ID заказа (или пула), Hash balancer сохраняет порядок событий одного заказа в партиции.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	now    func() time.Time
}

// ParseBrokers разбирает список брокеров через запятую
func ParseBrokers(csv string) []string {
	brokers := []string{}
	for _, b := range strings.Split(csv, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// NewKafkaPublisher создает publisher поверх kafka.Writer
func NewKafkaPublisher(brokers []string, topic string, writeTimeout time.Duration) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, ErrDisabled
	}
	if topic == "" {
		topic = DefaultTopic
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: writeTimeout,
	}
	return newKafkaPublisher(w, topic), nil
}

func newKafkaPublisher(w messageWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: w,
		topic:  topic,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// PublishTransition отправляет событие перехода заказа
func (p *KafkaPublisher) PublishTransition(ctx context.Context, ev models.TransitionEvent) error {
	return p.publish(ctx, ev.OrderID, Envelope{Type: TypeOrderTransition, Transition: &ev})
}

// PublishPool отправляет снимок пула
func (p *KafkaPublisher) PublishPool(ctx context.Context, pool *models.PoolGroup) error {
	return p.publish(ctx, pool.ID, Envelope{Type: TypePoolUpdated, Pool: pool})
}

func (p *KafkaPublisher) publish(ctx context.Context, key string, env Envelope) error {
	env.SentAt = p.now()
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", env.Type, err)
	}

	msg := kafka.Message{
		Key:     []byte(key),
		Value:   data,
		Time:    env.SentAt,
		Headers: []kafka.Header{{Key: "type", Value: []byte(env.Type)}},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write to %s: %w", p.topic, err)
	}
	return nil
}

// Close сбрасывает буферы writer'а
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
