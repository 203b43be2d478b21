package recipient

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// fileLoader reads recipient lists from the local file system. Files ending
// in .gz are decompressed.
type fileLoader struct {
	logger zerolog.Logger
}

// NewFileLoader creates a new file-based recipient loader.
func NewFileLoader(logger zerolog.Logger) Loader {
	return &fileLoader{
		logger: logger.With().Str("component", "recipient-loader").Logger(),
	}
}

// Load reads one e-mail address per line from filePath.
func (l *fileLoader) Load(ctx context.Context, filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		l.logger.Error().Err(err).Str("file", filePath).Msg("failed to open recipient file")
		return nil, fmt.Errorf("failed to open recipient file %s: %w", filePath, err)
	}
	defer file.Close()

	emails, err := readEmails(ctx, file, isGzip(filePath))
	if err != nil {
		l.logger.Error().Err(err).Str("file", filePath).Msg("error reading recipient file")
		return nil, fmt.Errorf("error reading recipient file %s: %w", filePath, err)
	}

	l.logger.Debug().
		Str("file", filePath).
		Int("recipients_loaded", len(emails)).
		Msg("recipient file loaded")

	return emails, nil
}
