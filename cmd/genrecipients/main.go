// Command genrecipients writes sample manager recipient files, plain and
// gzipped, for the file recipient source.
package main

import (
	"compress/gzip"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

var managers = []string{
	"# store managers, one address per line",
	"alice.manager@example.com",
	"bob.manager@example.com",
	"",
	"carol.lead@example.com",
	"alice.manager@example.com",
}

func main() {
	dataDir := flag.String("dir", "data", "output directory")
	flag.Parse()

	// Create directory if it doesn't exist
	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		log.Fatalf("Failed to create directory: %v", err)
	}

	plain := filepath.Join(*dataDir, "managers.txt")
	if err := writeFile(plain, false); err != nil {
		log.Fatalf("Failed to create %s: %v", plain, err)
	}
	fmt.Printf("Created %s\n", plain)

	gzipped := filepath.Join(*dataDir, "managers.txt.gz")
	if err := writeFile(gzipped, true); err != nil {
		log.Fatalf("Failed to create %s: %v", gzipped, err)
	}
	fmt.Printf("Created %s\n", gzipped)

	fmt.Println("\nBoth files resolve to 3 recipients: comment and blank lines")
	fmt.Println("are skipped and the repeated address is counted once.")
}

func writeFile(path string, compress bool) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	var w io.Writer = file
	if compress {
		gzipWriter := gzip.NewWriter(file)
		defer gzipWriter.Close()
		w = gzipWriter
	}

	for _, line := range managers {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return fmt.Errorf("failed to write line: %w", err)
		}
	}

	return nil
}
