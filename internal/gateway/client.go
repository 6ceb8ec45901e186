// Package gateway is the thin request layer between the dashboard and the
// backend. It owns no state. Every payload is normalized onto the canonical
// domain types here, so no other package sees field-name variants.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hochfrequenz/nf-ci-console/internal/config"
	"github.com/hochfrequenz/nf-ci-console/internal/domain"
	"github.com/sirupsen/logrus"
)

// maxBody caps JSON responses read into memory
const maxBody = 32 << 20

// RequestIDHeader carries a per-call correlation ID
const RequestIDHeader = "X-Request-ID"

// List is a collection payload. Null distinguishes a JSON null body
// ("nothing yet") from an empty array.
type List[T any] struct {
	Items []T
	Null  bool
}

// Client issues backend calls
type Client struct {
	baseURL   string
	endpoints config.EndpointsConfig
	client    *http.Client
	log       *logrus.Entry
}

// New creates a Client from the application config
func New(cfg *config.Config, log *logrus.Entry) *Client {
	return NewClient(cfg.Server.BaseURL, cfg.Endpoints, cfg.Server.Timeout.Duration, log)
}

// NewClient creates a Client for baseURL
func NewClient(baseURL string, endpoints config.EndpointsConfig, timeout time.Duration, log *logrus.Entry) *Client {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		endpoints: endpoints,
		client:    &http.Client{Timeout: timeout},
		log:       log,
	}
}

// Call issues method on path with an optional JSON body and returns the raw
// response body. Transport failures and non-2xx statuses become
// *domain.NetworkError. There are no retries; the next poll tick is the retry.
func (c *Client) Call(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	op := method + " " + path
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &domain.NetworkError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.NetworkError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	return data, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	op := method + " " + path

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &domain.NetworkError{Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.log.WithField("request_id", requestID).Debugf("%s failed: %v", op, err)
		return nil, &domain.NetworkError{Op: op, Err: err}
	}
	c.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"status":     resp.StatusCode,
		"elapsed":    time.Since(start).Round(time.Millisecond),
	}).Debug(op)
	return resp, nil
}

// errorMessage extracts the "error" field of an error payload
func errorMessage(data []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	return payload.Error
}

// expand substitutes {id} and {test} placeholders with path-escaped values
func expand(tmpl string, id, test string) string {
	r := strings.NewReplacer("{id}", url.PathEscape(id), "{test}", url.PathEscape(test))
	return r.Replace(tmpl)
}
