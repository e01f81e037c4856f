package pubsub

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// EventHeader carries the topic of the delivered event.
	EventHeader = "X-Broker-Event"
	// WebhookIDHeader carries the id of the subscription being notified.
	WebhookIDHeader = "X-Broker-Webhook-Id"

	maxErrorExcerpt = 512
)

type webhookClient struct {
	http    *http.Client
	timeout time.Duration
}

func newWebhookClient(timeout time.Duration) *webhookClient {
	return &webhookClient{&http.Client{}, timeout}
}

// post sends the event message to the endpoint of the webhook within the
// request timeout. Any response other than 2xx is an error reporting an
// excerpt of the response body.
func (c *webhookClient) post(
	ctx context.Context, hook webhook, topic, message, authorization string,
) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, hook.Endpoint, strings.NewReader(message),
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, topic)
	req.Header.Set(WebhookIDHeader, hook.ID)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	rs, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer rs.Body.Close()

	if rs.StatusCode >= http.StatusOK && rs.StatusCode < http.StatusMultipleChoices {
		// nolint
		io.Copy(io.Discard, rs.Body)
		return nil
	}

	excerpt, _ := io.ReadAll(io.LimitReader(rs.Body, maxErrorExcerpt))
	return fmt.Errorf(
		"webhook %s: status %d: %s",
		hook.ID, rs.StatusCode, strings.TrimSpace(string(excerpt)),
	)
}
