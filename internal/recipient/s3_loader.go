package recipient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// S3API is the subset of the S3 client the loader calls.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// s3Loader reads recipient lists from an S3 bucket.
type s3Loader struct {
	client S3API
	bucket string
	logger zerolog.Logger
}

// NewS3Loader creates a new S3-based recipient loader.
func NewS3Loader(client S3API, bucket string, logger zerolog.Logger) Loader {
	return &s3Loader{
		client: client,
		bucket: bucket,
		logger: logger.With().Str("component", "s3-recipient-loader").Logger(),
	}
}

// Load reads the object at key. Keys ending in .gz are decompressed.
func (l *s3Loader) Load(ctx context.Context, key string) ([]string, error) {
	result, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		l.logger.Error().
			Err(err).
			Str("bucket", l.bucket).
			Str("key", key).
			Msg("failed to get object from S3")
		return nil, fmt.Errorf("failed to get object from S3 (bucket=%s, key=%s): %w", l.bucket, key, err)
	}
	defer result.Body.Close()

	emails, err := readEmails(ctx, result.Body, isGzip(key))
	if err != nil {
		l.logger.Error().
			Err(err).
			Str("bucket", l.bucket).
			Str("key", key).
			Msg("error reading recipient list from S3")
		return nil, fmt.Errorf("error reading recipient list from S3 %s: %w", key, err)
	}

	l.logger.Debug().
		Str("bucket", l.bucket).
		Str("key", key).
		Int("recipients_loaded", len(emails)).
		Msg("recipient list loaded from S3")

	return emails, nil
}

// fallbackLoader tries S3 first, then the local file system.
type fallbackLoader struct {
	s3Loader   Loader
	fileLoader Loader
	s3Prefix   string
	s3Enabled  bool
	logger     zerolog.Logger
}

// NewFallbackLoader creates a loader that tries S3 first, then falls back to
// the local file system. If s3Loader is nil only the file loader is used.
func NewFallbackLoader(s3Loader, fileLoader Loader, s3Prefix string, s3Enabled bool, logger zerolog.Logger) Loader {
	return &fallbackLoader{
		s3Loader:   s3Loader,
		fileLoader: fileLoader,
		s3Prefix:   s3Prefix,
		s3Enabled:  s3Enabled,
		logger:     logger.With().Str("component", "fallback-recipient-loader").Logger(),
	}
}

// Load prepends the S3 prefix to location for the S3 attempt and uses
// location as-is for the local file system.
func (l *fallbackLoader) Load(ctx context.Context, location string) ([]string, error) {
	if l.s3Enabled && l.s3Loader != nil {
		key := l.s3Prefix + location

		emails, err := l.s3Loader.Load(ctx, key)
		if err == nil {
			return emails, nil
		}

		l.logger.Warn().
			Err(err).
			Str("s3_key", key).
			Msg("failed to load from S3, falling back to local file system")
	}

	return l.fileLoader.Load(ctx, location)
}
