// Package s3store reads document content that the repository has
// offloaded to an S3-compatible object store (MinIO, AWS S3, ...).
//
// Content rows in the SQL repository carry a storage URI. When the URI
// has the form s3://bucket/key, sqlrepo hands it to a Store.
package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/shinji-kodama/deepexport/internal/model"
)

// Scheme is the URI scheme of offloaded content.
const Scheme = "s3"

// Config holds the object store connection settings.
type Config struct {
	// Endpoint is host[:port] or a full http(s) URL.
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	AccessKey string `yaml:"access_key" json:"access_key"`
	SecretKey string `yaml:"secret_key" json:"secret_key"`
	Region    string `yaml:"region" json:"region"`

	// UseSSL forces TLS. An https:// endpoint implies it.
	UseSSL bool `yaml:"use_ssl" json:"use_ssl"`
}

// Enabled reports whether an endpoint is configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

// Store streams objects from one S3 endpoint.
type Store struct {
	client *minio.Client
}

// New creates a Store. No request is made until Open is called.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("s3 endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("s3 credentials are required")
	}

	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL
	if strings.Contains(endpoint, "://") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid s3 endpoint: %w", err)
		}
		endpoint = u.Host
		if u.Scheme == "https" {
			useSSL = true
		}
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &Store{client: client}, nil
}

// Open returns a reader over the object. A missing bucket or key is
// reported as model.ErrNotFound.
func (s *Store) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classify(bucket, key, err)
	}

	// GetObject is lazy; Stat surfaces a missing object before any bytes
	// are written locally.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, classify(bucket, key, err)
	}
	return obj, nil
}

// ParseURI splits s3://bucket/key into its bucket and key.
func ParseURI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("invalid storage uri %q: %w", uri, err)
	}
	if u.Scheme != Scheme {
		return "", "", fmt.Errorf("storage uri %q: scheme is not %s", uri, Scheme)
	}

	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("storage uri %q: bucket and key are required", uri)
	}
	return bucket, key, nil
}

func classify(bucket, key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchBucket", "NoSuchKey":
		return fmt.Errorf("s3 object %s/%s: %w", bucket, key, model.ErrNotFound)
	}
	return fmt.Errorf("s3 object %s/%s: %w", bucket, key, err)
}
