package journalcatalog

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"rpsls/broker/internal/journal"
)

// Entry captures a match manifest alongside its bundle directory.
type Entry struct {
	ManifestPath string           `json:"manifest_path"`
	BundleDir    string           `json:"bundle_dir"`
	Complete     bool             `json:"complete"`
	Manifest     journal.Manifest `json:"manifest"`
}

// List walks the directory tree and returns every parsed match manifest.
func List(root string) ([]Entry, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("root directory must be provided")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root must be a directory")
	}

	var entries []Entry
	//1.- Walk the directory tree searching for journal manifests.
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || d.Name() != "manifest.json" {
			return nil
		}
		dir := filepath.Dir(path)
		manifest, err := journal.ReadManifest(dir)
		if err != nil {
			return err
		}
		entries = append(entries, Entry{
			ManifestPath: path,
			BundleDir:    dir,
			Complete:     manifest.SummaryPath != "",
			Manifest:     manifest,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Manifest.CreatedAt == entries[j].Manifest.CreatedAt {
			return entries[i].Manifest.MatchID < entries[j].Manifest.MatchID
		}
		return entries[i].Manifest.CreatedAt < entries[j].Manifest.CreatedAt
	})
	return entries, nil
}

// MarshalEntries produces a stable JSON representation of the entries for CLI output.
func MarshalEntries(entries []Entry) ([]byte, error) {
	//1.- Marshal with indentation to keep CLI output legible for operators.
	return json.MarshalIndent(entries, "", "  ")
}
