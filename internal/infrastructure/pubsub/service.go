package pubsub

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/golang-jwt/jwt"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/tdex-network/tdex-broker/internal/core/ports"
	"github.com/tdex-network/tdex-broker/pkg/circuitbreaker"
	"github.com/timshannon/badgerhold/v4"
	"golang.org/x/sync/errgroup"
)

const (
	pubsubDir = "pubsub"

	defaultRequestTimeout = 15 * time.Second
)

type service struct {
	store  *badgerhold.Store
	cipher ports.Cipher
	client *webhookClient
	cb     *gobreaker.CircuitBreaker

	// ctx is canceled by Close to abort the deliveries in progress.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewService returns a webhook pubsub whose subscriptions are persisted in a
// badger db under the given datadir. An empty datadir keeps them in memory.
// Secrets are encrypted with the given cipher before being stored.
func NewService(
	datadir string, cipher ports.Cipher, logger badger.Logger,
	requestTimeout time.Duration,
) (ports.SecurePubSub, error) {
	if cipher == nil {
		return nil, fmt.Errorf("missing cipher")
	}
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	opts := badger.DefaultOptions("")
	if len(datadir) > 0 {
		opts = badger.DefaultOptions(filepath.Join(datadir, pubsubDir))
	} else {
		opts.InMemory = true
	}
	opts.Logger = logger

	store, err := badgerhold.Open(badgerhold.Options{
		Encoder: badgerhold.DefaultEncode,
		Decoder: badgerhold.DefaultDecode,
		Options: opts,
	})
	if err != nil {
		return nil, fmt.Errorf("opening pubsub db: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &service{
		store:  store,
		cipher: cipher,
		client: newWebhookClient(requestTimeout),
		cb:     circuitbreaker.NewCircuitBreaker("webhooks"),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

func (ws *service) Subscribe(topic, endpoint, secret string) (string, error) {
	var encryptedSecret string
	if secret != "" {
		var err error
		if encryptedSecret, err = ws.cipher.Encrypt(secret); err != nil {
			return "", fmt.Errorf("failed to encrypt webhook secret: %w", err)
		}
	}

	hook, err := newWebhook(topic, endpoint, encryptedSecret)
	if err != nil {
		return "", err
	}
	if err := ws.store.Insert(hook.ID, hook); err != nil {
		return "", err
	}
	return hook.ID, nil
}

func (ws *service) Unsubscribe(id string) error {
	if err := ws.store.Delete(id, webhook{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return ports.ErrWebhookNotFound
		}
		return err
	}
	return nil
}

// ListSubscriptionsForTopic returns the webhooks for the given topic,
// including those for any topic. An unspecified topic returns them all.
func (ws *service) ListSubscriptionsForTopic(topic string) []ports.Webhook {
	hooks, err := ws.findWebhooks(topic)
	if err != nil {
		log.WithError(err).Warnf("failed to list webhooks for topic %s", topic)
		return nil
	}

	infos := make([]ports.Webhook, 0, len(hooks))
	for _, hook := range hooks {
		infos = append(infos, hook.info())
	}
	return infos
}

func (ws *service) Publish(topic string, message string) error {
	hooks, err := ws.findWebhooks(topic)
	if err != nil {
		return err
	}

	eg := &errgroup.Group{}
	for i := range hooks {
		hook := hooks[i]
		eg.Go(func() error { return ws.deliver(hook, topic, message) })
	}
	return eg.Wait()
}

func (ws *service) Close() {
	ws.cancel()
	ws.store.Close()
}

// findWebhooks returns the webhooks of the topic, oldest first.
func (ws *service) findWebhooks(topic string) ([]webhook, error) {
	var query *badgerhold.Query
	switch topic {
	case ports.UnspecifiedTopic:
	case ports.AnyTopic:
		query = badgerhold.Where("Topic").Eq(ports.AnyTopic)
	default:
		query = badgerhold.Where("Topic").In(topic, ports.AnyTopic)
	}

	var hooks []webhook
	if err := ws.store.Find(&hooks, query); err != nil {
		return nil, err
	}
	sort.SliceStable(hooks, func(i, j int) bool {
		if hooks[i].CreatedAt.Equal(hooks[j].CreatedAt) {
			return hooks[i].ID < hooks[j].ID
		}
		return hooks[i].CreatedAt.Before(hooks[j].CreatedAt)
	})
	return hooks, nil
}

func (ws *service) deliver(hook webhook, topic, message string) error {
	var authorization string
	if hook.isSecured() {
		secret, err := ws.cipher.Decrypt(hook.Secret)
		if err != nil {
			return fmt.Errorf("webhook %s: failed to decrypt secret: %w", hook.ID, err)
		}
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.StandardClaims{
			IssuedAt: time.Now().Unix(),
			Subject:  hook.ID,
		})
		tokenString, err := token.SignedString([]byte(secret))
		if err != nil {
			return err
		}
		authorization = fmt.Sprintf("Bearer %s", tokenString)
	}

	_, err := ws.cb.Execute(func() (interface{}, error) {
		return nil, ws.client.post(ws.ctx, hook, topic, message, authorization)
	})
	return err
}
