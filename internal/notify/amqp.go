package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const exchangeName = "hospital.notifications"

// AMQPNotifier publishes notification events to a durable topic exchange.
type AMQPNotifier struct {
	ch *amqp.Channel
}

// NewAMQPNotifier opens a channel on conn and declares the notification
// exchange.
func NewAMQPNotifier(conn *amqp.Connection) (*AMQPNotifier, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchangeName,
		"topic",
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchangeName, err)
	}

	return &AMQPNotifier{ch: ch}, nil
}

func (n *AMQPNotifier) Close() error {
	return n.ch.Close()
}

func (n *AMQPNotifier) AppointmentCheckedIn(ctx context.Context, ev CheckInEvent) error {
	return n.publish(ctx, KeyAppointmentCheckedIn, ev)
}

func (n *AMQPNotifier) PaymentReceived(ctx context.Context, ev PaymentEvent) error {
	return n.publish(ctx, KeyPaymentReceived, ev)
}

func (n *AMQPNotifier) InvoiceOverdue(ctx context.Context, ev InvoiceOverdueEvent) error {
	return n.publish(ctx, KeyInvoiceOverdue, ev)
}

func (n *AMQPNotifier) publish(ctx context.Context, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", key, err)
	}

	err = n.ch.PublishWithContext(ctx, exchangeName, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}
