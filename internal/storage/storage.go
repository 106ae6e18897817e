// Package storage provides the object-storage gateway used by the upload broker.
// It defines the Gateway interface (port) for hexagonal architecture and an
// implementation for S3-compatible backends.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// Static errors for storage operations.
var (
	// ErrBucketRequired is returned when no bucket name is configured.
	ErrBucketRequired = errors.New("storage: bucket is required")
	// ErrKeyRequired is returned when an operation is attempted with an empty object key.
	ErrKeyRequired = errors.New("storage: object key is required")
	// ErrNoKeys is returned when a batch delete is attempted with no keys.
	ErrNoKeys = errors.New("storage: no object keys given")
	// ErrBackend is returned when the storage backend refuses or fails a call.
	ErrBackend = errors.New("storage: backend error")
)

// ACLPublicRead is the canned ACL applied to every object written through the gateway.
const ACLPublicRead = "public-read"

// PresignedUpload is a browser-redeemable POST grant for a single object.
type PresignedUpload struct {
	// URL is the form action the client posts to.
	URL string
	// Fields are the form fields the client must send alongside the file.
	Fields map[string]string
}

// Gateway defines the capabilities the upload broker needs from object storage.
// Implementations are bound to a single bucket.
type Gateway interface {
	// PresignUpload mints a POST grant that allows writing exactly key with the
	// given content type and a public-read ACL until expires has elapsed.
	PresignUpload(ctx context.Context, key, contentType string, expires time.Duration) (*PresignedUpload, error)

	// DeleteObject removes a single object.
	DeleteObject(ctx context.Context, key string) error

	// DeleteObjects removes several objects in one request.
	DeleteObjects(ctx context.Context, keys []string) error

	// Upload streams data to key and returns the public location of the object.
	Upload(ctx context.Context, key, contentType string, data io.Reader) (location string, err error)
}
