package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"PosPrint/app/models"
)

// JobExchange is the topic exchange job lifecycle events are published on
const JobExchange = "print_jobs"

// Notifier pushes a named event to connected websocket clients. The
// websocket hub implements it.
type Notifier interface {
	Notify(event string, data interface{})
}

// NopNotifier drops every event
type NopNotifier struct{}

func (NopNotifier) Notify(string, interface{}) {}

// JobEvent describes a job state change
type JobEvent struct {
	JobID       string           `json:"job_id"`
	JobType     models.JobType   `json:"job_type"`
	PrinterRole string           `json:"printer_role,omitempty"`
	Status      models.JobStatus `json:"status"`
	AgentID     string           `json:"agent_id,omitempty"`
	Error       string           `json:"error,omitempty"`
	At          time.Time        `json:"at"`
}

// NewJobEvent builds the event for the job's current state
func NewJobEvent(job *models.PrintJob) JobEvent {
	return JobEvent{
		JobID:       job.ID,
		JobType:     job.JobType,
		PrinterRole: job.PrinterRole,
		Status:      job.Status,
		AgentID:     job.AgentID,
		Error:       job.ErrorMessage,
		At:          time.Now().UTC(),
	}
}

// RoutingKey is job.<status>.<role>, "any" when the job has no role
func (e JobEvent) RoutingKey() string {
	role := e.PrinterRole
	if role == "" {
		role = "any"
	}
	return fmt.Sprintf("job.%s.%s", e.Status, role)
}

// EventPublisher delivers job events to interested consumers
type EventPublisher interface {
	Publish(ctx context.Context, event JobEvent) error
	Close()
}

// NopPublisher is used when no broker is configured
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, JobEvent) error { return nil }
func (NopPublisher) Close()                                  {}

// AMQPPublisher publishes persistent JSON events to a RabbitMQ topic
// exchange and waits for the broker's confirm
type AMQPPublisher struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	acks <-chan amqp.Confirmation
	mu   sync.Mutex
}

// DialAMQPPublisher connects and declares the job exchange
func DialAMQPPublisher(url string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(JobExchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable confirms: %w", err)
	}
	acks := ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	return &AMQPPublisher{conn: conn, ch: ch, acks: acks}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, event JobEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	tag := p.ch.GetNextPublishSeqNo()
	if err := p.ch.PublishWithContext(ctx, JobExchange, event.RoutingKey(), false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Timestamp:    event.At,
		MessageId:    event.JobID,
		Body:         body,
	}); err != nil {
		return err
	}
	return awaitConfirm(ctx, p.acks, tag)
}

// awaitConfirm waits for the confirm of delivery tag. Confirms left over
// from publishes whose context expired carry lower tags and are skipped.
func awaitConfirm(ctx context.Context, acks <-chan amqp.Confirmation, tag uint64) error {
	for {
		select {
		case conf, ok := <-acks:
			if !ok {
				return errors.New("confirm channel closed")
			}
			if conf.DeliveryTag < tag {
				continue
			}
			if conf.Ack {
				return nil
			}
			return errors.New("publish NACK from broker")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *AMQPPublisher) Close() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
