// Package grant issues presigned upload grants and confirms their fulfillment.
// Issuing a grant records a reservation whose reaper deletes the object if the
// client never confirms the upload.
package grant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/upload-broker/internal/reservation"
	"github.com/maauso/upload-broker/internal/storage"
)

// DefaultExpiration is how long a grant stays redeemable when none is configured.
const DefaultExpiration = 120 * time.Second

// Static errors for grant operations.
var (
	// ErrInvalidRequest is the parent of every input validation error.
	ErrInvalidRequest = errors.New("grant: invalid request")
	// ErrEmptyFilename is returned when Issue is called without a filename.
	ErrEmptyFilename = fmt.Errorf("%w: filename is required", ErrInvalidRequest)
	// ErrEmptyGrantKey is returned when Fulfill is called without a grant identifier.
	ErrEmptyGrantKey = fmt.Errorf("%w: grant identifier is required", ErrInvalidRequest)
	// ErrGrantCreation is returned when the storage backend refuses to mint a grant.
	ErrGrantCreation = errors.New("grant: could not create upload grant")
	// ErrNotFound is returned when fulfilling an unknown, expired or already fulfilled grant.
	ErrNotFound = errors.New("grant: URL not found")
)

// Presigner mints upload grants. It is satisfied by storage.Gateway.
type Presigner interface {
	PresignUpload(ctx context.Context, key, contentType string, expires time.Duration) (*storage.PresignedUpload, error)
}

// Reservations records and resolves outstanding grants. It is satisfied by *reservation.Table.
type Reservations interface {
	Reserve(grantKey, objectKey string) (reservation.Reservation, error)
	MarkFulfilled(grantKey string) (reservation.Reservation, error)
}

// Grant is the descriptor handed to the client.
type Grant struct {
	// URL is the form action to POST the file to.
	URL string
	// Fields must be sent verbatim as form fields with the file.
	Fields map[string]string
	// Location identifies the grant and is where the object lives once uploaded.
	Location string
	// ObjectKey is the bucket key the grant is scoped to.
	ObjectKey string
	// ContentType is the content type the grant is restricted to.
	ContentType string
	// ExpiresAt is when the reservation is reaped if unfulfilled.
	ExpiresAt time.Time
}

// Service issues grants and handles fulfillment callbacks.
type Service struct {
	presigner    Presigner
	reservations Reservations
	logger       *slog.Logger
	expiration   time.Duration
	keyFunc      func(filename string) string
}

// Option is a function that configures a Service.
type Option func(*Service)

// WithExpiration sets how long a grant remains redeemable at the storage backend.
func WithExpiration(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.expiration = d
		}
	}
}

// WithKeyFunc overrides object key derivation.
func WithKeyFunc(f func(filename string) string) Option {
	return func(s *Service) {
		if f != nil {
			s.keyFunc = f
		}
	}
}

// NewService creates a new grant Service.
func NewService(presigner Presigner, reservations Reservations, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		presigner:    presigner,
		reservations: reservations,
		logger:       logger,
		expiration:   DefaultExpiration,
		keyFunc:      ObjectKey,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Expiration returns the storage-side grant lifetime.
func (s *Service) Expiration() time.Duration {
	return s.expiration
}

// Issue mints a grant for filename and reserves it.
// No reservation is recorded when the backend refuses the grant.
func (s *Service) Issue(ctx context.Context, filename string) (*Grant, error) {
	if SanitizeFilename(filename) == "" {
		return nil, ErrEmptyFilename
	}

	key := s.keyFunc(filename)
	contentType := ContentType(filename)

	upload, err := s.presigner.PresignUpload(ctx, key, contentType, s.expiration)
	if err != nil {
		s.logger.Error("failed to create presigned upload",
			slog.String("object_key", key),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %w", ErrGrantCreation, err)
	}

	location := storage.ObjectLocation(upload.URL, key)
	res, err := s.reservations.Reserve(location, key)
	if err != nil {
		s.logger.Error("failed to reserve grant",
			slog.String("grant_key", location),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %w", ErrGrantCreation, err)
	}

	s.logger.Info("upload grant issued",
		slog.String("grant_key", location),
		slog.String("object_key", key),
		slog.String("content_type", contentType),
		slog.Time("expires_at", res.ExpiresAt),
	)

	return &Grant{
		URL:         upload.URL,
		Fields:      upload.Fields,
		Location:    location,
		ObjectKey:   key,
		ContentType: contentType,
		ExpiresAt:   res.ExpiresAt,
	}, nil
}

// Fulfill confirms the upload behind grantKey and cancels its reaper.
// A second call for the same grant, or a call after expiry, returns ErrNotFound.
func (s *Service) Fulfill(_ context.Context, grantKey string) error {
	if grantKey == "" {
		return ErrEmptyGrantKey
	}

	res, err := s.reservations.MarkFulfilled(grantKey)
	if err != nil {
		if errors.Is(err, reservation.ErrNotFound) {
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return err
	}

	s.logger.Info("upload grant fulfilled",
		slog.String("grant_key", grantKey),
		slog.String("object_key", res.ObjectKey),
	)
	return nil
}
