package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// maxDeleteBatch is the largest number of keys S3 accepts in one DeleteObjects call.
const maxDeleteBatch = 1000

// Compile-time check that S3Gateway implements Gateway.
var _ Gateway = (*S3Gateway)(nil)

// S3Config holds the configuration for S3-compatible storage.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: for S3-compatible endpoints such as DigitalOcean Spaces or MinIO
	AccessKeyID     string // Optional: static access key ID
	SecretAccessKey string // Optional: static secret access key
	UsePathStyle    bool   // Forces path-style addressing (MinIO, LocalStack)
}

// S3Gateway implements Gateway on top of aws-sdk-go-v2.
type S3Gateway struct {
	client    *s3.Client
	presigner *s3.PresignClient
	uploader  *manager.Uploader
	bucket    string
}

// NewS3Gateway creates a new S3Gateway bound to cfg.Bucket.
func NewS3Gateway(ctx context.Context, cfg S3Config) (*S3Gateway, error) {
	if cfg.Bucket == "" {
		return nil, ErrBucketRequired
	}

	var configOpts []func(*config.LoadOptions) error
	configOpts = append(configOpts, config.WithRegion(cfg.Region))

	// Use static credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Gateway{
		client:    client,
		presigner: s3.NewPresignClient(client),
		uploader:  manager.NewUploader(client),
		bucket:    cfg.Bucket,
	}, nil
}

// Bucket returns the bucket the gateway is bound to.
func (g *S3Gateway) Bucket() string {
	return g.bucket
}

// PresignUpload mints a presigned POST policy for exactly key.
// The policy pins the content type and the public-read ACL, and the matching
// form fields are returned so the client can submit them verbatim.
func (g *S3Gateway) PresignUpload(ctx context.Context, key, contentType string, expires time.Duration) (*PresignedUpload, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(g.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPublicRead,
	}

	req, err := g.presigner.PresignPostObject(ctx, input, func(o *s3.PresignPostOptions) {
		o.Expires = expires
		o.Conditions = []interface{}{
			map[string]string{"acl": ACLPublicRead},
			[]interface{}{"eq", "$Content-Type", contentType},
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%w: presign post %s: %w", ErrBackend, key, err)
	}

	fields := make(map[string]string, len(req.Values)+2)
	for k, v := range req.Values {
		fields[k] = v
	}
	fields["acl"] = ACLPublicRead
	fields["Content-Type"] = contentType

	return &PresignedUpload{
		URL:    req.URL,
		Fields: fields,
	}, nil
}

// DeleteObject removes a single object from the bucket.
func (g *S3Gateway) DeleteObject(ctx context.Context, key string) error {
	if key == "" {
		return ErrKeyRequired
	}

	_, err := g.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("%w: delete %s: %w", ErrBackend, key, err)
	}
	return nil
}

// DeleteObjects removes keys in batches of at most 1000.
// Per-object failures reported by the backend are returned as an error.
func (g *S3Gateway) DeleteObjects(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return ErrNoKeys
	}

	for start := 0; start < len(keys); start += maxDeleteBatch {
		end := min(start+maxDeleteBatch, len(keys))

		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			if k == "" {
				return ErrKeyRequired
			}
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(k)})
		}

		out, err := g.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(g.bucket),
			Delete: &types.Delete{Objects: objects},
		})
		if err != nil {
			return fmt.Errorf("%w: delete objects: %w", ErrBackend, err)
		}
		if len(out.Errors) > 0 {
			failed := make([]string, 0, len(out.Errors))
			for _, e := range out.Errors {
				failed = append(failed, aws.ToString(e.Key)+" ("+aws.ToString(e.Code)+")")
			}
			return fmt.Errorf("%w: delete objects: %s", ErrBackend, strings.Join(failed, ", "))
		}
	}
	return nil
}

// Upload streams data to key with a public-read ACL and returns the object location.
// Large bodies are split into a multipart upload by the transfer manager.
func (g *S3Gateway) Upload(ctx context.Context, key, contentType string, data io.Reader) (string, error) {
	if key == "" {
		return "", ErrKeyRequired
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
		Body:   data,
		ACL:    types.ObjectCannedACLPublicRead,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	out, err := g.uploader.Upload(ctx, input)
	if err != nil {
		return "", fmt.Errorf("%w: upload %s: %w", ErrBackend, key, err)
	}
	return out.Location, nil
}

// ObjectLocation joins a presigned POST URL and an object key into the
// address the object is reachable at once uploaded. Each key segment is
// percent-escaped; the separators between segments are kept.
func ObjectLocation(postURL, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimSuffix(postURL, "/") + "/" + strings.Join(segments, "/")
}
