package service

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	notificationQueue = "notifications"
	actionHeader      = "x-action"

	ActionPush  = "push"
	ActionEmail = "email"
)

// PushNotification is dispatched for participants with no live connection
// when a message or call reaches them.
type PushNotification struct {
	UserID string `json:"userId"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// EmailNotification is a transactional email request handed to the mailer
// worker.
type EmailNotification struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Mailer is the transactional email side of the notification queue.
type Mailer interface {
	PublishEmail(ctx context.Context, n EmailNotification)
}

// NotificationService publishes push and email jobs onto a RabbitMQ queue
// consumed by workers outside this service. A nil *NotificationService is
// a valid no-op publisher, used when the broker is not configured.
type NotificationService struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *zap.Logger
}

func NewNotificationService(url string, logger *zap.Logger) (*NotificationService, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open RabbitMQ channel: %w", err)
	}

	_, err = channel.QueueDeclare(
		notificationQueue, // name
		false,             // durable
		false,             // delete when unused
		false,             // exclusive
		false,             // no-wait
		nil,               // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare notification queue: %w", err)
	}

	logger.Info("connection opened to RabbitMQ", zap.String("queue", notificationQueue))
	return &NotificationService{conn: conn, channel: channel, logger: logger}, nil
}

// PublishPush enqueues a push-notification job. Fire and forget: failures
// are logged, never surfaced to the triggering operation.
func (s *NotificationService) PublishPush(ctx context.Context, n PushNotification) {
	s.publish(ctx, ActionPush, n)
}

// PublishEmail enqueues a transactional email job.
func (s *NotificationService) PublishEmail(ctx context.Context, n EmailNotification) {
	s.publish(ctx, ActionEmail, n)
}

func (s *NotificationService) publish(ctx context.Context, action string, payload any) {
	if s == nil {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to marshal notification", zap.String("action", action), zap.Error(err))
		return
	}

	err = s.channel.PublishWithContext(ctx,
		"",                // exchange
		notificationQueue, // routing key
		false,             // mandatory
		false,             // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Headers:     amqp.Table{actionHeader: action},
			Body:        body,
		},
	)
	if err != nil {
		s.logger.Error("failed to publish notification", zap.String("action", action), zap.Error(err))
	}
}

func (s *NotificationService) Close() {
	if s == nil {
		return
	}
	if s.channel != nil {
		_ = s.channel.Close()
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
}
