package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/upload-broker/internal/config"
	"github.com/maauso/upload-broker/internal/storage"
)

func testConfig() *config.Config {
	return &config.Config{
		BucketName:                "test-bucket",
		BucketRegion:              "ap-southeast-1",
		BucketEndpoint:            "http://localhost:9000",
		BucketPathStyle:           true,
		AccessKeyID:               "test",
		SecretAccessKey:           "test",
		BackendAPI:                "http://backend.invalid/verify",
		BackendSecret:             "secret",
		PresignedURLExpirationSec: 45,
	}
}

func TestNewDependencies(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	deps, err := NewDependencies(context.Background(), testConfig(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { deps.Reservations.Shutdown() })

	assert.Equal(t, "test-bucket", deps.Gateway.Bucket())
	assert.Equal(t, 45*time.Second, deps.Grants.Expiration())
	assert.Equal(t, deps.Grants.Expiration()+reapGrace, deps.Reservations.Window(), "reaper must trail grant expiry by the grace period")
	assert.NotNil(t, deps.Validator)

	families, err := deps.Registry.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["upload_broker_reservations_live"])
	assert.True(t, names["go_goroutines"])
}

func TestNewDependencies_MissingBucket(t *testing.T) {
	cfg := testConfig()
	cfg.BucketName = ""

	_, err := NewDependencies(context.Background(), cfg, slog.Default())
	assert.ErrorIs(t, err, storage.ErrBucketRequired)
}
