package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"switchfuzz/internal/types"
	"switchfuzz/pkg/mq"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const PhaseEventQueue = "switchfuzz_phase_events"

// MQNotifier publishes events as JSON on a durable queue.
type MQNotifier struct {
	rabbitMQ mq.RabbitMQ
	logger   *zap.Logger

	mu       sync.Mutex
	declared bool
}

// NewMQNotifier returns nil without a broker.
func NewMQNotifier(rabbitMQ mq.RabbitMQ, logger *zap.Logger) *MQNotifier {
	if rabbitMQ == nil {
		return nil
	}
	return &MQNotifier{rabbitMQ: rabbitMQ, logger: logger}
}

func (n *MQNotifier) declareQueue() error {
	channel, err := n.rabbitMQ.GetChannel()
	if err != nil {
		return err
	}
	defer channel.Close()

	_, err = channel.QueueDeclare(
		PhaseEventQueue,
		true,  // durable
		false, // auto-deleted
		false, // exclusive
		false, // no-wait
		nil,
	)
	return err
}

func (n *MQNotifier) Notify(ctx context.Context, event types.PhaseEvent) error {
	n.mu.Lock()
	if !n.declared {
		if err := n.declareQueue(); err != nil {
			n.mu.Unlock()
			return fmt.Errorf("failed to declare %s: %w", PhaseEventQueue, err)
		}
		n.declared = true
	}
	n.mu.Unlock()

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal phase event: %w", err)
	}

	channel, err := n.rabbitMQ.GetChannel()
	if err != nil {
		return err
	}
	defer channel.Close()

	err = channel.PublishWithContext(ctx,
		"",              // exchange
		PhaseEventQueue, // routing key
		false,           // mandatory
		false,           // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish phase event: %w", err)
	}
	n.logger.Debug("phase event queued", zap.String("queue", PhaseEventQueue), zap.String("kind", string(event.Kind)))
	return nil
}
