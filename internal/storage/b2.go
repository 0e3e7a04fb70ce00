package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"skinstudio/internal/domain"
)

// Remote is an object store reachable over the network.
type Remote interface {
	// Upload copies the file at localPath to key and returns its public URL.
	Upload(ctx context.Context, localPath, key string) (string, error)
	// Download copies key into destPath. Missing objects yield domain.ErrNotFound.
	Download(ctx context.Context, key, destPath string) error
	Exists(ctx context.Context, key string) (bool, error)
	// URLPrefix is the prefix shared by every URL returned from Upload.
	URLPrefix() string
}

// B2Options configures the S3-compatible Backblaze B2 client.
type B2Options struct {
	Endpoint       string
	Region         string
	Bucket         string
	KeyID          string
	ApplicationKey string
	UseSSL         bool
}

// B2Store talks to a Backblaze B2 bucket through its S3-compatible API.
type B2Store struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewB2Store(opts B2Options) (*B2Store, error) {
	endpoint := strings.TrimSpace(opts.Endpoint)
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
	endpoint = strings.TrimRight(endpoint, "/")
	if endpoint == "" || opts.Bucket == "" {
		return nil, errors.New("storage: b2 endpoint and bucket are required")
	}
	if opts.KeyID == "" || opts.ApplicationKey == "" {
		return nil, errors.New("storage: b2 credentials are required")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.KeyID, opts.ApplicationKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: b2 client: %w", err)
	}

	scheme := "https"
	if !opts.UseSSL {
		scheme = "http"
	}
	return &B2Store{
		client: client,
		bucket: opts.Bucket,
		prefix: fmt.Sprintf("%s://%s/%s/", scheme, endpoint, opts.Bucket),
	}, nil
}

func (b *B2Store) URLPrefix() string { return b.prefix }

func (b *B2Store) Upload(ctx context.Context, localPath, key string) (string, error) {
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(key)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if _, err := b.client.FPutObject(ctx, b.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", fmt.Errorf("%w: b2 upload %s: %v", domain.ErrUpstreamUnavailable, key, err)
	}
	return b.prefix + key, nil
}

func (b *B2Store) Download(ctx context.Context, key, destPath string) error {
	if err := b.client.FGetObject(ctx, b.bucket, key, destPath, minio.GetObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return fmt.Errorf("%w: %s", domain.ErrNotFound, key)
		}
		return fmt.Errorf("%w: b2 download %s: %v", domain.ErrUpstreamUnavailable, key, err)
	}
	return nil
}

func (b *B2Store) Exists(ctx context.Context, key string) (bool, error) {
	if _, err := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: b2 stat %s: %v", domain.ErrUpstreamUnavailable, key, err)
	}
	return true, nil
}

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}

var _ Remote = (*B2Store)(nil)
