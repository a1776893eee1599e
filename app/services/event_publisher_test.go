package services

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"PosPrint/app/models"
)

func TestAwaitConfirmSkipsStaleConfirms(t *testing.T) {
	acks := make(chan amqp.Confirmation, 3)
	acks <- amqp.Confirmation{DeliveryTag: 1, Ack: true}
	acks <- amqp.Confirmation{DeliveryTag: 2, Ack: false}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := awaitConfirm(ctx, acks, 2); err == nil {
		t.Fatalf("tag 2 was nacked, want an error")
	}

	acks <- amqp.Confirmation{DeliveryTag: 3, Ack: true}
	if err := awaitConfirm(ctx, acks, 3); err != nil {
		t.Fatalf("tag 3: %v", err)
	}
}

func TestAwaitConfirmStopsOnContext(t *testing.T) {
	acks := make(chan amqp.Confirmation, 1)
	acks <- amqp.Confirmation{DeliveryTag: 4, Ack: true}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := awaitConfirm(ctx, acks, 5); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}

	close(acks)
	if err := awaitConfirm(context.Background(), acks, 5); err == nil {
		t.Fatalf("closed channel, want an error")
	}
}

func TestJobEventRoutingKeyDefaultsRole(t *testing.T) {
	e := JobEvent{Status: models.JobStatusFailed}
	if got := e.RoutingKey(); got != "job.failed.any" {
		t.Fatalf("routing key = %q, want job.failed.any", got)
	}
}
