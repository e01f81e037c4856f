package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tdex-network/tdex-broker/internal/core/ports"
	"github.com/tdex-network/tdex-broker/pkg/circuitbreaker"
)

// SessionCookie is the name of the cookie carrying the account credential.
const SessionCookie = "session"

const defaultRequestTimeout = 15 * time.Second

type response struct {
	status int
	header http.Header
	body   []byte
}

type errorResponse struct {
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// client is a json http client for one remote service. Transport failures
// and 5xx responses count as failures for the circuit breaker, other error
// responses are returned as *ports.PlatformError.
type client struct {
	*http.Client
	baseURL string
	cb      *gobreaker.CircuitBreaker
}

func newClient(name, baseURL string, requestTimeout time.Duration) (*client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("missing %s url", name)
	}
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	return &client{
		Client:  &http.Client{Timeout: requestTimeout},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		cb:      circuitbreaker.NewCircuitBreaker(name),
	}, nil
}

func (c *client) post(
	ctx context.Context, path, credential string, header map[string]string,
	body, out interface{},
) error {
	return c.do(ctx, http.MethodPost, path, credential, header, body, out)
}

func (c *client) get(
	ctx context.Context, path, credential string, out interface{},
) error {
	return c.do(ctx, http.MethodGet, path, credential, nil, nil, out)
}

func (c *client) do(
	ctx context.Context, method, path, credential string,
	header map[string]string, body, out interface{},
) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if credential != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: credential})
	}
	for key, value := range header {
		if value != "" {
			req.Header.Set(key, value)
		}
	}

	res, err := c.cb.Execute(func() (interface{}, error) {
		rs, err := c.Do(req)
		if err != nil {
			return nil, err
		}
		defer rs.Body.Close()

		buf, err := io.ReadAll(rs.Body)
		if err != nil {
			return nil, err
		}
		resp := &response{rs.StatusCode, rs.Header, buf}
		if rs.StatusCode >= http.StatusInternalServerError {
			return nil, platformError(resp)
		}
		return resp, nil
	})
	if err != nil {
		return err
	}

	resp := res.(*response)
	if resp.status >= http.StatusBadRequest {
		return platformError(resp)
	}
	if out == nil || len(bytes.TrimSpace(resp.body)) <= 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("failed to parse response of %s %s: %w", method, path, err)
	}
	return nil
}

// platformError turns an error response into a *ports.PlatformError. The
// first of the listed errors, if any, gives code and message.
func platformError(resp *response) *ports.PlatformError {
	perr := &ports.PlatformError{
		StatusCode: resp.status,
		Message:    http.StatusText(resp.status),
		Headers:    make(map[string]string),
	}
	for key, values := range resp.header {
		if len(values) > 0 {
			perr.Headers[strings.ToLower(key)] = values[0]
		}
	}

	errResp := errorResponse{}
	if err := json.Unmarshal(resp.body, &errResp); err == nil && len(errResp.Errors) > 0 {
		perr.Code = errResp.Errors[0].Code
		if errResp.Errors[0].Message != "" {
			perr.Message = errResp.Errors[0].Message
		}
	}
	return perr
}
