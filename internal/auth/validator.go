// Package auth checks request credentials against an external token
// validation endpoint.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Static errors for credential validation.
var (
	// ErrEndpointRequired is returned when no validation endpoint is configured.
	ErrEndpointRequired = errors.New("auth: validation endpoint is required")
	// ErrMissingToken is returned when the Authorization header is absent or not a Bearer token.
	ErrMissingToken = errors.New("auth: missing or invalid bearer token")
	// ErrUnauthorized is returned when the validation endpoint rejects the token.
	ErrUnauthorized = errors.New("auth: invalid credentials")
	// ErrValidatorUnavailable is returned when the validation endpoint cannot be reached or fails.
	ErrValidatorUnavailable = errors.New("auth: validator unavailable")
)

// bearerPrefix is the scheme prefix every accepted Authorization header carries.
const bearerPrefix = "Bearer "

// Validator decides whether an Authorization header grants access.
type Validator interface {
	// Validate returns nil when header carries valid credentials.
	Validate(ctx context.Context, header string) error
}

// HTTPValidator forwards the caller's Authorization header to a remote
// endpoint and accepts the request only on a 200 response.
type HTTPValidator struct {
	endpoint   string
	secret     string
	httpClient *http.Client
}

// ValidatorOption is a function that configures an HTTPValidator.
type ValidatorOption func(*HTTPValidator)

// WithSecret sets the shared secret sent as the request body.
func WithSecret(secret string) ValidatorOption {
	return func(v *HTTPValidator) {
		v.secret = secret
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ValidatorOption {
	return func(v *HTTPValidator) {
		v.httpClient = c
	}
}

// NewHTTPValidator creates a validator that calls endpoint.
func NewHTTPValidator(endpoint string, opts ...ValidatorOption) (*HTTPValidator, error) {
	if endpoint == "" {
		return nil, ErrEndpointRequired
	}

	v := &HTTPValidator{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Validate checks header locally for the Bearer scheme, then asks the remote
// endpoint. It does not retry.
func (v *HTTPValidator) Validate(ctx context.Context, header string) error {
	if !strings.HasPrefix(header, bearerPrefix) || strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix)) == "" {
		return ErrMissingToken
	}

	var body io.Reader
	if v.secret != "" {
		body = strings.NewReader(v.secret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.endpoint, body)
	if err != nil {
		return fmt.Errorf("%w: create request: %w", ErrValidatorUnavailable, err)
	}
	req.Header.Set("Authorization", header)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: request failed: %w", ErrValidatorUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrValidatorUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	}
}
