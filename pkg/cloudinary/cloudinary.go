package cloudinary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Service stores assignment and submission files as raw Cloudinary assets.
type Service struct {
	client *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
}

const resourceType = "raw"

var versionSegment = regexp.MustCompile(`^v\d+$`)

// ErrUnknownReference is returned when a URL does not point at a Cloudinary upload.
var ErrUnknownReference = errors.New("not a cloudinary upload url")

// New constructs a Cloudinary service instance.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &Service{
		client: cld,
		folder: strings.Trim(cfg.Folder, "/"),
		logger: logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

// Upload stores the payload under key and returns its secure URL.
func (s *Service) Upload(ctx context.Context, key string, reader io.Reader) (string, error) {
	folder, publicID := s.placement(key)

	overwrite := false
	params := uploader.UploadParams{
		Folder:       folder,
		PublicID:     publicID,
		ResourceType: resourceType,
		Overwrite:    &overwrite,
	}

	result, err := s.client.Upload.Upload(ctx, reader, params)
	if err != nil {
		return "", fmt.Errorf("failed to upload asset: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("failed to upload asset: %s", result.Error.Message)
	}

	s.logger.Info().Str("public_id", result.PublicID).Msg("file uploaded to cloudinary")

	return result.SecureURL, nil
}

// Delete removes the asset a previously returned URL points at.
func (s *Service) Delete(ctx context.Context, ref string) error {
	publicID, err := PublicIDFromURL(ref)
	if err != nil {
		return err
	}

	result, err := s.client.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     publicID,
		ResourceType: resourceType,
	})
	if err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	if result.Error.Message != "" {
		return fmt.Errorf("failed to delete asset: %s", result.Error.Message)
	}

	s.logger.Info().Str("public_id", publicID).Str("result", result.Result).Msg("file removed from cloudinary")
	return nil
}

func (s *Service) placement(key string) (string, string) {
	key = strings.Trim(key, "/")
	dir, file := path.Split(key)
	folder := strings.Trim(path.Join(s.folder, dir), "/")
	return folder, file
}

// PublicIDFromURL extracts the public id (including folders and extension) from a delivery URL.
func PublicIDFromURL(ref string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnknownReference, err)
	}

	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	for i, segment := range segments {
		if segment != "upload" {
			continue
		}
		rest := segments[i+1:]
		if len(rest) > 0 && versionSegment.MatchString(rest[0]) {
			rest = rest[1:]
		}
		if len(rest) == 0 {
			break
		}
		return strings.Join(rest, "/"), nil
	}

	return "", ErrUnknownReference
}
