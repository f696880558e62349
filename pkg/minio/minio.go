package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// Config describes how to reach the object store.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	// PublicURL is the externally reachable base for stored objects. Defaults to the endpoint.
	PublicURL string
}

// ErrUnknownReference is returned when a URL does not belong to the configured bucket.
var ErrUnknownReference = errors.New("not an object url for this bucket")

// Service stores files in an S3-compatible bucket.
type Service struct {
	client    *miniogo.Client
	bucket    string
	region    string
	publicURL string
	logger    zerolog.Logger

	ensureMu      sync.Mutex
	bucketEnsured bool
}

// New creates the client and tries to make sure the bucket exists. A store that is not
// ready yet is retried lazily on the first upload.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("minio endpoint and bucket must be provided")
	}

	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		publicURL = strings.TrimRight(client.EndpointURL().String(), "/")
	}

	svc := &Service{
		client:    client,
		bucket:    cfg.Bucket,
		region:    cfg.Region,
		publicURL: publicURL,
		logger:    logger.With().Str("component", "minio").Logger(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := svc.ensureBucket(ctx); err != nil {
		svc.logger.Warn().Err(err).Str("bucket", cfg.Bucket).Msg("bucket not ready during startup; will retry on demand")
	}

	return svc, nil
}

func (s *Service) ensureBucket(ctx context.Context) error {
	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()
	if s.bucketEnsured {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, miniogo.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		s.logger.Info().Str("bucket", s.bucket).Msg("created bucket")
	}

	s.bucketEnsured = true
	return nil
}

// Upload writes the payload under key and returns its public URL.
func (s *Service) Upload(ctx context.Context, key string, reader io.Reader) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}

	key = strings.TrimLeft(key, "/")
	size := int64(-1)
	if sized, ok := reader.(interface{ Len() int }); ok {
		size = int64(sized.Len())
	}

	contentType := mimeForKey(key, "application/octet-stream")

	info, err := s.client.PutObject(ctx, s.bucket, key, reader, size, miniogo.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object: %w", err)
	}

	s.logger.Debug().
		Str("bucket", s.bucket).
		Str("key", key).
		Str("etag", info.ETag).
		Int64("size", info.Size).
		Msg("object uploaded")

	return s.objectURL(key), nil
}

// Delete removes the object behind a URL returned by Upload.
func (s *Service) Delete(ctx context.Context, ref string) error {
	key, err := s.keyFromURL(ref)
	if err != nil {
		return err
	}

	if err := s.client.RemoveObject(ctx, s.bucket, key, miniogo.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}

	s.logger.Debug().Str("bucket", s.bucket).Str("key", key).Msg("object deleted")
	return nil
}

func (s *Service) objectURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", s.publicURL, s.bucket, key)
}

func (s *Service) keyFromURL(ref string) (string, error) {
	prefix := s.publicURL + "/" + s.bucket + "/"
	if !strings.HasPrefix(ref, prefix) {
		return "", ErrUnknownReference
	}
	key, err := url.PathUnescape(strings.TrimPrefix(ref, prefix))
	if err != nil || key == "" {
		return "", ErrUnknownReference
	}
	return key, nil
}

func mimeForKey(key, fallback string) string {
	dot := strings.LastIndex(key, ".")
	if dot < 0 {
		return fallback
	}
	switch strings.ToLower(key[dot:]) {
	case ".pdf":
		return "application/pdf"
	case ".zip":
		return "application/zip"
	case ".txt":
		return "text/plain; charset=utf-8"
	default:
		return fallback
	}
}
