// Package notify publishes identity notification events (verification
// emails, password resets) to a message broker consumed by the mailer.
package notify

import (
	"context"
	"encoding/json"
)

// ChannelVerification carries verification-request events.
const ChannelVerification = "identity.verification"

// Purposes of a verification event.
const (
	PurposeEmailVerify   = "email_verify"
	PurposePasswordReset = "password_reset"
)

// VerificationEvent asks the mailer to deliver a one-time token.
type VerificationEvent struct {
	Email   string `json:"email"`
	Token   string `json:"token"`
	Purpose string `json:"purpose"`
}

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// Bus wraps a backend with event-typed publish helpers.
type Bus struct {
	backend Backend
}

// New constructs a Bus for the provided backend.
func New(backend Backend) *Bus {
	return &Bus{backend: backend}
}

// PublishVerification sends a verification event to the mailer channel.
func (b *Bus) PublishVerification(ctx context.Context, event VerificationEvent) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	attrs := map[string]string{"purpose": event.Purpose}
	return b.backend.Publish(ctx, ChannelVerification, data, attrs)
}

// SubscribeVerification consumes verification events, decoding each
// payload before invoking the handler.
func (b *Bus) SubscribeVerification(ctx context.Context, handler func(ctx context.Context, event VerificationEvent) error) error {
	return b.backend.Subscribe(ctx, ChannelVerification, func(ctx context.Context, msg Message) error {
		var event VerificationEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return err
		}
		return handler(ctx, event)
	})
}

// Close closes the underlying backend.
func (b *Bus) Close() error {
	return b.backend.Close()
}
