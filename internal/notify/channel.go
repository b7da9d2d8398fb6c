// Package notify delivers reminder notifications over the supported
// channels: email (SMTP) and chat webhooks (Discord-compatible embeds).
//
// Every channel implements Channel. Failures are reported as *DeliveryError
// so callers can inspect the channel, remote status and whether retrying
// later could help. Missing channel configuration surfaces as
// ErrNotConfigured (checkable with errors.Is) and never touches the network.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/tbourn/go-reminder-backend/internal/domain"
)

// ErrNotConfigured is returned when a channel lacks the credentials or
// settings it needs to deliver anything.
var ErrNotConfigured = errors.New("channel not configured")

// Channel delivers one notification to target.
type Channel interface {
	Deliver(ctx context.Context, target, title, message string) error
}

// ChannelFunc adapts a plain function to Channel.
type ChannelFunc func(ctx context.Context, target, title, message string) error

// Deliver calls f.
func (f ChannelFunc) Deliver(ctx context.Context, target, title, message string) error {
	return f(ctx, target, title, message)
}

// DeliveryError describes a failed delivery.
//
// Status is the remote HTTP status (0 when no response was received) and
// Message the remote error text when the remote returned one. Transient is
// true when a later attempt may succeed (rate limits, 5xx, network errors).
type DeliveryError struct {
	Channel   string
	Status    int
	Message   string
	Transient bool
	Err       error
}

func (e *DeliveryError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s delivery failed (status %d): %s", e.Channel, e.Status, msg)
	}
	return fmt.Sprintf("%s delivery failed: %s", e.Channel, msg)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Registry maps notify types to their channel. The set of types is closed:
// only values accepted by domain.NotifyType.Valid can be registered.
type Registry struct {
	channels map[domain.NotifyType]Channel
}

// NewRegistry returns a Registry with the email and webhook channels bound.
// A nil channel leaves its type unregistered.
func NewRegistry(email, webhook Channel) *Registry {
	r := &Registry{channels: make(map[domain.NotifyType]Channel, 2)}
	if email != nil {
		r.channels[domain.NotifyEmail] = email
	}
	if webhook != nil {
		r.channels[domain.NotifyWebhook] = webhook
	}
	return r
}

// Lookup returns the channel bound to t.
func (r *Registry) Lookup(t domain.NotifyType) (Channel, bool) {
	if r == nil || !t.Valid() {
		return nil, false
	}
	ch, ok := r.channels[t]
	return ch, ok
}
