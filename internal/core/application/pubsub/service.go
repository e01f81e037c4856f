package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-broker/internal/core/domain"
	"github.com/tdex-network/tdex-broker/internal/core/ports"
)

const (
	TopicChallengePrompt     = "CHALLENGE_PROMPT"
	TopicMultiTradeProcessed = "MULTI_TRADE_PROCESSED"
)

var (
	// ErrUnknownTopic ...
	ErrUnknownTopic = fmt.Errorf("unknown event topic")
	// ErrWebhooksDisabled ...
	ErrWebhooksDisabled = fmt.Errorf("webhooks are not enabled")
)

// WebhookInfo ...
type WebhookInfo struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Endpoint  string    `json:"endpoint"`
	IsSecured bool      `json:"isSecured"`
	CreatedAt time.Time `json:"createdAt"`
}

// Service broadcasts the lifecycle events of the broker to the webhooks
// and to every other registered sink, like websocket clients.
type Service struct {
	pubsub ports.SecurePubSub
	sinks  []ports.Publisher
}

// NewService returns a service publishing to the given webhook pubsub, if
// any, and to the other sinks.
func NewService(pubsub ports.SecurePubSub, sinks ...ports.Publisher) *Service {
	return &Service{pubsub, sinks}
}

func (s *Service) AddWebhook(
	_ context.Context, topic, endpoint, secret string,
) (string, error) {
	if s.pubsub == nil {
		return "", ErrWebhooksDisabled
	}
	if !isKnownTopic(topic) {
		return "", fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	return s.pubsub.Subscribe(topic, endpoint, secret)
}

func (s *Service) RemoveWebhook(_ context.Context, id string) error {
	if s.pubsub == nil {
		return ErrWebhooksDisabled
	}
	return s.pubsub.Unsubscribe(id)
}

func (s *Service) ListWebhooks(
	_ context.Context, topic string,
) ([]WebhookInfo, error) {
	if s.pubsub == nil {
		return nil, ErrWebhooksDisabled
	}
	if topic != ports.UnspecifiedTopic && !isKnownTopic(topic) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	hooks := s.pubsub.ListSubscriptionsForTopic(topic)
	webhooks := make([]WebhookInfo, 0, len(hooks))
	for _, hook := range hooks {
		webhooks = append(webhooks, WebhookInfo{
			ID:        hook.ID,
			Topic:     hook.Topic,
			Endpoint:  hook.Endpoint,
			IsSecured: hook.IsSecured,
			CreatedAt: hook.CreatedAt,
		})
	}
	return webhooks, nil
}

// PublishChallengePromptEvent ...
func (s *Service) PublishChallengePromptEvent(prompt domain.ChallengePrompt) error {
	payload := struct {
		Event string `json:"event"`
		domain.ChallengePrompt
	}{TopicChallengePrompt, prompt}
	return s.publish(TopicChallengePrompt, payload)
}

// PublishMultiTradeProcessedEvent ...
func (s *Service) PublishMultiTradeProcessedEvent(
	result domain.MultiTradeResult,
) error {
	payload := struct {
		Event string `json:"event"`
		domain.MultiTradeResult
	}{TopicMultiTradeProcessed, result}
	return s.publish(TopicMultiTradeProcessed, payload)
}

func (s *Service) Close() {
	if s.pubsub != nil {
		s.pubsub.Close()
	}
}

// publish delivers the event to every sink. A failing sink does not prevent
// the others from being notified, the first error is returned.
func (s *Service) publish(topic string, payload interface{}) error {
	message, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	publishers := make([]ports.Publisher, 0, len(s.sinks)+1)
	if s.pubsub != nil {
		publishers = append(publishers, s.pubsub)
	}
	publishers = append(publishers, s.sinks...)

	var firstErr error
	for _, p := range publishers {
		if err := p.Publish(topic, string(message)); err != nil {
			log.WithError(err).Warnf("failed to publish %s event", topic)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func isKnownTopic(topic string) bool {
	switch topic {
	case TopicChallengePrompt, TopicMultiTradeProcessed, ports.AnyTopic:
		return true
	default:
		return false
	}
}
