package events

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/ariefcatur/salon-booking-core/internal/booking"
	kafkax "github.com/ariefcatur/salon-booking-core/internal/kafka"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"time"
)

// NewEnvelope wraps a reservation.created payload.
func NewEnvelope(producer string, ev booking.ReservationCreated) (Envelope, error) {
	payload, err := json.Marshal(ReservationCreatedPayload(ev))
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal payload: %w", err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventReservationCreated,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: ev.ReservationID,
		Payload:       payload,
	}, nil
}

type kafkaPublisher interface {
	Publish(key, value []byte, headers ...kafkago.Header) error
}

// KafkaDispatcher publishes to the reservation.created topic through the
// buffered producer.
type KafkaDispatcher struct {
	P       kafkaPublisher
	Service string
}

func (d *KafkaDispatcher) ReservationCreated(_ context.Context, ev booking.ReservationCreated) error {
	env, err := NewEnvelope(d.Service, ev)
	if err != nil {
		return err
	}
	return d.P.Publish(PartitionKey(ev.ReservationID), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(EventReservationCreated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

type amqpPublisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

// RabbitDispatcher publishes to the durable reservation.created queue.
type RabbitDispatcher struct {
	P       amqpPublisher
	Service string
}

func (d *RabbitDispatcher) ReservationCreated(ctx context.Context, ev booking.ReservationCreated) error {
	env, err := NewEnvelope(d.Service, ev)
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return d.P.Publish(ctx, TopicReservationCreated, body)
}

var (
	_ booking.Dispatcher = (*KafkaDispatcher)(nil)
	_ booking.Dispatcher = (*RabbitDispatcher)(nil)
)
