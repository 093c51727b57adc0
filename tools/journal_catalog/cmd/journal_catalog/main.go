package main

import (
	"flag"
	"fmt"
	"os"

	journalcatalog "rpsls/broker/tools/journal_catalog"
)

func main() {
	root := flag.String("dir", ".", "directory containing match journal bundles")
	jsonFlag := flag.Bool("json", false, "emit JSON instead of human-readable output")
	flag.Parse()

	entries, err := journalcatalog.List(*root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *jsonFlag {
		payload, err := journalcatalog.MarshalEntries(entries)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(string(payload))
		return
	}

	for _, entry := range entries {
		status := "in flight"
		if entry.Complete {
			status = "complete"
		}
		fmt.Printf("%s (%s)\n", entry.Manifest.MatchID, status)
		if entry.Manifest.CreatedAt != "" {
			fmt.Printf("  created: %s\n", entry.Manifest.CreatedAt)
		}
		fmt.Printf("  bundle: %s\n", entry.BundleDir)
	}
}
