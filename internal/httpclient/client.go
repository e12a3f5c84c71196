// Package httpclient provides the shared resty-based HTTP client used by
// every external service adapter (LLM, embedding): standardized timeout,
// header, and retry configuration, plus a typed client error.
package httpclient

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// ClientError represents an HTTP client operation error with context.
type ClientError struct {
	Op         string // the operation that failed
	Service    string // the service name
	StatusCode int    // HTTP status code (if applicable)
	Err        error  // the underlying error
}

func (e *ClientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("client: %s %s failed with status %d: %v",
			e.Service, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("client: %s %s failed: %v", e.Service, e.Op, e.Err)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// NewClientError creates a new ClientError for a transport-level failure.
func NewClientError(service, op string, err error) *ClientError {
	return &ClientError{Op: op, Service: service, Err: err}
}

// NewHTTPError creates a new ClientError for an HTTP status code failure.
func NewHTTPError(service, op string, statusCode int, body string) *ClientError {
	return &ClientError{
		Op:         op,
		Service:    service,
		StatusCode: statusCode,
		Err:        fmt.Errorf("HTTP %d: %s", statusCode, body),
	}
}

// IsRetryableStatus reports whether an HTTP status code indicates a
// transient failure (transport error or 5xx) worth retrying.
func IsRetryableStatus(statusCode int) bool {
	return statusCode == 0 || statusCode >= 500
}

// IsCapacityStatus reports whether an HTTP status code indicates the
// service is rate-limiting the caller (429).
func IsCapacityStatus(statusCode int) bool {
	return statusCode == 429
}

// Client wraps a resty client with standardized timeout, auth header, and
// transport-level retry configuration. Adapters build request/response
// shapes on top and add their own retry policy for shape and capacity
// errors (a different escalation tier from resty's transport retries).
type Client struct {
	rc      *resty.Client
	service string
}

// New creates a Client configured against baseURL with bearer auth.
func New(service, baseURL, apiKey string, timeout time.Duration) *Client {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Authorization", "Bearer "+apiKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second)

	rc.AddRetryCondition(func(r *resty.Response, err error) bool {
		return err != nil || r.StatusCode() >= 500
	})

	return &Client{rc: rc, service: service}
}

// Post performs a POST request, decoding the JSON response body into result.
// It returns the resolved status code alongside any error so callers can
// distinguish transient, capacity, and permanent failures.
func (c *Client) Post(endpoint string, body, result any) (statusCode int, err error) {
	resp, err := c.rc.R().
		SetBody(body).
		SetResult(result).
		Post(endpoint)
	if err != nil {
		return 0, NewClientError(c.service, "POST "+endpoint, err)
	}

	if resp.StatusCode() != 200 {
		return resp.StatusCode(), NewHTTPError(c.service, "POST "+endpoint, resp.StatusCode(), resp.String())
	}

	return resp.StatusCode(), nil
}
