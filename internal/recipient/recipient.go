// Package recipient resolves who receives low-stock alerts.
package recipient

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Directory returns the e-mail addresses of the managers to alert.
type Directory interface {
	Managers(ctx context.Context) ([]string, error)
}

// Loader reads a recipient list from a location such as a file path or an
// object key.
type Loader interface {
	Load(ctx context.Context, location string) ([]string, error)
}

// staticDirectory returns a fixed list.
type staticDirectory struct {
	emails []string
}

// NewStaticDirectory creates a directory that always returns emails.
func NewStaticDirectory(emails ...string) Directory {
	return &staticDirectory{emails: emails}
}

func (d *staticDirectory) Managers(ctx context.Context) ([]string, error) {
	out := make([]string, len(d.emails))
	copy(out, d.emails)
	return out, nil
}

// loaderDirectory reads the recipient lists through a Loader on every call,
// so edits take effect without a restart.
type loaderDirectory struct {
	loader    Loader
	locations []string
	logger    zerolog.Logger
}

// NewLoaderDirectory creates a directory backed by loader reading every
// location. The lists are merged in location order without duplicates.
func NewLoaderDirectory(loader Loader, logger zerolog.Logger, locations ...string) Directory {
	return &loaderDirectory{
		loader:    loader,
		locations: locations,
		logger:    logger.With().Str("component", "recipient-directory").Logger(),
	}
}

// Managers loads all locations concurrently. Any failed location fails the
// whole lookup.
func (d *loaderDirectory) Managers(ctx context.Context) ([]string, error) {
	type loadResult struct {
		index  int
		emails []string
		err    error
	}

	resultChan := make(chan loadResult, len(d.locations))
	var wg sync.WaitGroup

	for i, location := range d.locations {
		wg.Add(1)
		go func(index int, location string) {
			defer wg.Done()

			emails, err := d.loader.Load(ctx, location)
			resultChan <- loadResult{index: index, emails: emails, err: err}
		}(i, location)
	}

	wg.Wait()
	close(resultChan)

	// Collect results in order
	results := make([]loadResult, len(d.locations))
	for result := range resultChan {
		results[result.index] = result
	}

	seen := make(map[string]struct{})
	merged := make([]string, 0)
	for i, result := range results {
		if result.err != nil {
			d.logger.Error().
				Err(result.err).
				Str("location", d.locations[i]).
				Msg("failed to load recipient list")
			return nil, fmt.Errorf("failed to load recipient list %s: %w", d.locations[i], result.err)
		}
		for _, email := range result.emails {
			if _, ok := seen[email]; ok {
				continue
			}
			seen[email] = struct{}{}
			merged = append(merged, email)
		}
	}

	d.logger.Debug().
		Int("locations", len(d.locations)).
		Int("recipients", len(merged)).
		Msg("recipient lists loaded")

	return merged, nil
}

// readEmails parses one address per line. Blank lines and lines starting
// with '#' are skipped and duplicates are dropped, keeping first-seen order.
// gzipped selects gzip decoding of r.
func readEmails(ctx context.Context, r io.Reader, gzipped bool) ([]string, error) {
	if gzipped {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	seen := make(map[string]struct{})
	emails := make([]string, 0)
	lineCount := 0
	for scanner.Scan() {
		if lineCount%10_000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		lineCount++

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		emails = append(emails, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read recipient list: %w", err)
	}
	return emails, nil
}

func isGzip(location string) bool {
	return strings.HasSuffix(location, ".gz")
}
