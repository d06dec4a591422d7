package events

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"storefront/internal/config"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher queues events in memory and writes them from one goroutine.
// When the queue is full new events are dropped and logged.
type KafkaPublisher struct {
	w      messageWriter
	inbox  chan kafka.Message
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
	now    func() time.Time
	logger zerolog.Logger
}

// NewKafkaPublisher creates a publisher writing to cfg.Topic and starts its writer loop.
func NewKafkaPublisher(cfg config.KafkaConfig, logger zerolog.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	return newKafkaPublisher(w, cfg.Buffer, logger)
}

func newKafkaPublisher(w messageWriter, buf int, logger zerolog.Logger) *KafkaPublisher {
	p := &KafkaPublisher{
		w:      w,
		inbox:  make(chan kafka.Message, buf),
		done:   make(chan struct{}),
		now:    time.Now,
		logger: logger.With().Str("component", "kafka-publisher").Logger(),
	}
	go p.run()
	return p
}

func (p *KafkaPublisher) run() {
	defer close(p.done)
	for m := range p.inbox {
		if err := p.w.WriteMessages(context.Background(), m); err != nil {
			p.logger.Error().
				Err(err).
				Str("order_id", string(m.Key)).
				Str("event_type", headerValue(m, "x-event-type")).
				Msg("failed to write event")
		}
	}
	if err := p.w.Close(); err != nil {
		p.logger.Error().Err(err).Msg("failed to close kafka writer")
	}
}

// Publish wraps payload in an Envelope keyed by the order id.
func (p *KafkaPublisher) Publish(ctx context.Context, eventType string, orderID uuid.UUID, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		return
	}

	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  envelopeVersion,
		OccurredAt:    p.now().UTC(),
		Producer:      producerName,
		CorrelationID: orderID.String(),
		Payload:       body,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}

	value, err := json.Marshal(env)
	if err != nil {
		p.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event envelope")
		return
	}

	msg := kafka.Message{
		Key:   []byte(orderID.String()),
		Value: value,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: "x-event-type", Value: []byte(eventType)},
			{Key: "x-event-version", Value: []byte(strconv.Itoa(envelopeVersion))},
		},
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.Warn().Str("event_type", eventType).Str("order_id", orderID.String()).Msg("publisher closed, event dropped")
		return
	}

	select {
	case p.inbox <- msg:
	default:
		p.logger.Warn().Str("event_type", eventType).Str("order_id", orderID.String()).Msg("event queue full, event dropped")
	}
}

// Close stops accepting events, flushes the queue and closes the writer.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.inbox)
	}
	p.mu.Unlock()

	<-p.done
	return nil
}

func headerValue(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
