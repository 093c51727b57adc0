package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Bundle is a decoded match folder. Summary is nil while the match is
// still in flight.
type Bundle struct {
	Manifest Manifest
	Rounds   []RoundEntry
	Summary  *Summary
}

// ReadManifest decodes the manifest of the bundle rooted at dir.
func ReadManifest(dir string) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return Manifest{}, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	if manifest.Version != schemaVersion {
		return Manifest{}, fmt.Errorf("unsupported manifest version %d", manifest.Version)
	}
	return manifest, nil
}

// ReadBundle decodes an entire match folder written by the journal.
func ReadBundle(dir string) (Bundle, error) {
	manifest, err := ReadManifest(dir)
	if err != nil {
		return Bundle{}, err
	}
	bundle := Bundle{Manifest: manifest}

	bundle.Rounds, err = readRoundsLog(filepath.Join(dir, manifest.RoundsPath))
	if err != nil {
		return Bundle{}, err
	}

	if manifest.SummaryPath != "" {
		doc, err := readSummaryDoc(filepath.Join(dir, manifest.SummaryPath))
		if err != nil {
			return Bundle{}, err
		}
		bundle.Summary = &doc
	}
	return bundle, nil
}

func readRoundsLog(path string) ([]RoundEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	//1.- Walk the snappy-framed JSONL stream one line at a time.
	scanner := bufio.NewScanner(snappy.NewReader(file))
	var entries []RoundEntry
	for scanner.Scan() {
		var entry RoundEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, fmt.Errorf("parse round %d: %w", len(entries), err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read rounds log: %w", err)
	}
	return entries, nil
}

func readSummaryDoc(path string) (Summary, error) {
	file, err := os.Open(path)
	if err != nil {
		return Summary{}, err
	}
	defer file.Close()

	stream, err := zstd.NewReader(file)
	if err != nil {
		return Summary{}, err
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return Summary{}, fmt.Errorf("read summary: %w", err)
	}
	var doc Summary
	if err := json.Unmarshal(data, &doc); err != nil {
		return Summary{}, fmt.Errorf("parse summary: %w", err)
	}
	return doc, nil
}
