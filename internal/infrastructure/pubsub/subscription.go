package pubsub

import (
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/tdex-network/tdex-broker/internal/core/ports"
)

// webhook is the stored form of a subscription. The secret is encrypted.
type webhook struct {
	ID        string
	Topic     string `badgerhold:"index"`
	Endpoint  string
	Secret    string
	CreatedAt time.Time
}

func newWebhook(topic, endpoint, encryptedSecret string) (*webhook, error) {
	if topic == ports.UnspecifiedTopic {
		return nil, fmt.Errorf("%w: missing topic", ports.ErrInvalidWebhook)
	}
	u, err := url.ParseRequestURI(endpoint)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf(
			"%w: endpoint must be an absolute url", ports.ErrInvalidWebhook,
		)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf(
			"%w: unsupported endpoint scheme %s", ports.ErrInvalidWebhook, u.Scheme,
		)
	}

	return &webhook{
		ID:        uuid.New().String(),
		Topic:     topic,
		Endpoint:  endpoint,
		Secret:    encryptedSecret,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (w webhook) isSecured() bool {
	return w.Secret != ""
}

func (w webhook) info() ports.Webhook {
	return ports.Webhook{
		ID:        w.ID,
		Topic:     w.Topic,
		Endpoint:  w.Endpoint,
		IsSecured: w.isSecured(),
		CreatedAt: w.CreatedAt,
	}
}
