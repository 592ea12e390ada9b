package cloudinary

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
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

// Service archives evaluated submissions as raw Cloudinary assets.
type Service struct {
	client *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
}

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
		folder: cfg.Folder,
		logger: logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

// Archive uploads a submission under <folder>/<reference> and returns its secure URL.
func (s *Service) Archive(ctx context.Context, reference, name string, reader io.Reader) (string, error) {
	folder := archiveFolder(s.folder, reference)

	params := uploader.UploadParams{
		Folder:         folder,
		PublicID:       buildPublicID(name),
		ResourceType:   "raw",
		UniqueFilename: boolPtr(false),
		Overwrite:      boolPtr(true),
		Tags:           []string{"gema-evaluator"},
	}

	result, err := s.client.Upload.Upload(ctx, reader, params)
	if err != nil {
		return "", fmt.Errorf("failed to archive submission: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("failed to archive submission: %s", result.Error.Message)
	}

	s.logger.Info().
		Str("public_id", result.PublicID).
		Str("reference_id", reference).
		Msg("submission archived to cloudinary")

	return result.SecureURL, nil
}

func archiveFolder(base, reference string) string {
	base = strings.Trim(base, "/")
	reference = strings.Trim(reference, "/")
	switch {
	case base == "":
		return reference
	case reference == "":
		return base
	default:
		return path.Join(base, reference)
	}
}

// buildPublicID keeps the extension because raw assets are served by public id.
func buildPublicID(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '-'
	}, base)

	base = strings.Trim(base, "-")
	if base == "" {
		base = "submission"
	}
	if ext == "" {
		ext = ".txt"
	}

	return base + ext
}

func boolPtr(v bool) *bool {
	return &v
}
