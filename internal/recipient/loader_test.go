package recipient

import (
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createRecipientFile writes lines to a file in a temp dir, gzipping it when
// the name ends in .gz.
func createRecipientFile(t *testing.T, filename string, lines []string) string {
	t.Helper()
	filePath := filepath.Join(t.TempDir(), filename)

	file, err := os.Create(filePath)
	require.NoError(t, err)
	defer file.Close()

	content := []byte(strings.Join(lines, "\n") + "\n")
	if isGzip(filename) {
		gz := gzip.NewWriter(file)
		_, err = gz.Write(content)
		require.NoError(t, err)
		require.NoError(t, gz.Close())
		return filePath
	}

	_, err = file.Write(content)
	require.NoError(t, err)
	return filePath
}

func TestFileLoader_Load(t *testing.T) {
	lines := []string{
		"# store managers",
		"alice@example.com",
		"",
		"  bob@example.com  ",
		"alice@example.com",
	}
	expected := []string{"alice@example.com", "bob@example.com"}

	tests := []struct {
		name     string
		filename string
	}{
		{name: "plain text", filename: "managers.txt"},
		{name: "gzipped", filename: "managers.txt.gz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := NewFileLoader(zerolog.Nop())
			filePath := createRecipientFile(t, tt.filename, lines)

			emails, err := loader.Load(context.Background(), filePath)
			require.NoError(t, err)
			assert.Equal(t, expected, emails)
		})
	}
}

func TestFileLoader_Load_EmptyFile(t *testing.T) {
	loader := NewFileLoader(zerolog.Nop())
	filePath := createRecipientFile(t, "empty.txt", nil)

	emails, err := loader.Load(context.Background(), filePath)
	require.NoError(t, err)
	assert.NotNil(t, emails)
	assert.Empty(t, emails)
}

func TestFileLoader_Load_FileNotFound(t *testing.T) {
	loader := NewFileLoader(zerolog.Nop())

	emails, err := loader.Load(context.Background(), "/nonexistent/managers.txt")
	assert.Error(t, err)
	assert.Nil(t, emails)
	assert.Contains(t, err.Error(), "failed to open recipient file")
}

func TestFileLoader_Load_InvalidGzip(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "broken.gz")
	require.NoError(t, os.WriteFile(filePath, []byte("not gzip"), 0o600))

	loader := NewFileLoader(zerolog.Nop())
	_, err := loader.Load(context.Background(), filePath)
	assert.Error(t, err)
}

func TestFileLoader_Load_ContextCancelled(t *testing.T) {
	loader := NewFileLoader(zerolog.Nop())
	filePath := createRecipientFile(t, "managers.txt", []string{"alice@example.com"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := loader.Load(ctx, filePath)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoaderDirectory_Managers(t *testing.T) {
	filePath := createRecipientFile(t, "managers.txt", []string{"alice@example.com"})
	directory := NewLoaderDirectory(NewFileLoader(zerolog.Nop()), zerolog.Nop(), filePath)

	emails, err := directory.Managers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alice@example.com"}, emails)

	require.NoError(t, os.WriteFile(filePath, []byte("carol@example.com\n"), 0o600))

	emails, err = directory.Managers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"carol@example.com"}, emails, "list is re-read on every call")
}

func TestLoaderDirectory_MergesLocations(t *testing.T) {
	first := createRecipientFile(t, "managers.txt", []string{"alice@example.com", "bob@example.com"})
	second := createRecipientFile(t, "leads.txt.gz", []string{"bob@example.com", "carol@example.com"})
	directory := NewLoaderDirectory(NewFileLoader(zerolog.Nop()), zerolog.Nop(), first, second)

	emails, err := directory.Managers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alice@example.com", "bob@example.com", "carol@example.com"}, emails)
}

func TestLoaderDirectory_FailedLocation(t *testing.T) {
	loader := &mockLoader{loadFunc: func(ctx context.Context, location string) ([]string, error) {
		if location == "missing.txt" {
			return nil, os.ErrNotExist
		}
		return []string{"alice@example.com"}, nil
	}}
	directory := NewLoaderDirectory(loader, zerolog.Nop(), "managers.txt", "missing.txt")

	emails, err := directory.Managers(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), "missing.txt")
	assert.Nil(t, emails)
}

func TestLoaderDirectory_NoLocations(t *testing.T) {
	directory := NewLoaderDirectory(NewFileLoader(zerolog.Nop()), zerolog.Nop())

	emails, err := directory.Managers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, emails)
}

func TestStaticDirectory_Managers(t *testing.T) {
	directory := NewStaticDirectory("alice@example.com", "bob@example.com")

	emails, err := directory.Managers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alice@example.com", "bob@example.com"}, emails)

	emails[0] = "mallory@example.com"
	again, _ := directory.Managers(context.Background())
	assert.Equal(t, "alice@example.com", again[0])
}
