package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewHTTPValidator_MissingEndpoint(t *testing.T) {
	_, err := NewHTTPValidator("")
	if err != ErrEndpointRequired {
		t.Errorf("expected ErrEndpointRequired, got %v", err)
	}
}

func TestNewHTTPValidator_WithSecretOption(t *testing.T) {
	v, err := NewHTTPValidator("http://validator", WithSecret("s3cret"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.secret != "s3cret" {
		t.Errorf("expected secret to be 's3cret', got '%s'", v.secret)
	}
}

func TestValidate_MissingToken(t *testing.T) {
	v, _ := NewHTTPValidator("http://validator.invalid")

	for _, header := range []string{"", "Basic abc", "Bearer ", "bearer token"} {
		if err := v.Validate(context.Background(), header); err != ErrMissingToken {
			t.Errorf("Validate(%q) = %v, want ErrMissingToken", header, err)
		}
	}
}

func TestValidate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer good-token" {
			t.Errorf("expected forwarded header, got %s", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "backend-secret" {
			t.Errorf("expected secret body, got %q", string(body))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	v, _ := NewHTTPValidator(server.URL, WithSecret("backend-secret"))

	if err := v.Validate(context.Background(), "Bearer good-token"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"forbidden", http.StatusForbidden, ErrUnauthorized},
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"no content is not ok", http.StatusNoContent, ErrUnauthorized},
		{"server error", http.StatusInternalServerError, ErrValidatorUnavailable},
		{"bad gateway", http.StatusBadGateway, ErrValidatorUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			v, _ := NewHTTPValidator(server.URL)
			err := v.Validate(context.Background(), "Bearer token")
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestValidate_NoRetry(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	v, _ := NewHTTPValidator(server.URL)
	_ = v.Validate(context.Background(), "Bearer token")

	if calls != 1 {
		t.Errorf("expected exactly 1 call, got %d", calls)
	}
}

func TestValidate_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	v, _ := NewHTTPValidator(server.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := v.Validate(ctx, "Bearer token")
	if !errors.Is(err, ErrValidatorUnavailable) {
		t.Errorf("expected ErrValidatorUnavailable, got %v", err)
	}
}
