package ports

import (
	"errors"
	"time"
)

const (
	// AnyTopic subscribes a webhook to every topic.
	AnyTopic = "*"
	// UnspecifiedTopic lists the webhooks of every topic.
	UnspecifiedTopic = ""
)

var (
	// ErrWebhookNotFound is returned when unsubscribing an unknown webhook.
	ErrWebhookNotFound = errors.New("webhook not found")
	// ErrInvalidWebhook is returned when subscribing with a malformed topic
	// or endpoint.
	ErrInvalidWebhook = errors.New("invalid webhook")
)

// Webhook is the public view of a webhook subscription, its secret never
// leaves the pubsub store.
type Webhook struct {
	ID        string
	Topic     string
	Endpoint  string
	IsSecured bool
	CreatedAt time.Time
}

// Publisher is anything that can deliver a message published for a topic,
// ie. webhooks or connected websocket clients.
type Publisher interface {
	Publish(topic string, message string) error
}

// SecurePubSub notifies the events of a topic to the subscribed webhooks,
// signing the requests of those registered with a secret.
type SecurePubSub interface {
	Publisher
	Subscribe(topic, endpoint, secret string) (string, error)
	Unsubscribe(id string) error
	// ListSubscriptionsForTopic includes the webhooks subscribed to any topic.
	ListSubscriptionsForTopic(topic string) []Webhook
	Close()
}
