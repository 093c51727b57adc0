package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	journaldump "rpsls/broker/tools/journal_dump"
)

func main() {
	path := flag.String("path", "", "Path to a match bundle directory or its manifest.json")
	jsonFlag := flag.Bool("json", false, "emit JSON instead of the game transcript")
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "path flag is required")
		os.Exit(1)
	}

	bundle, err := journaldump.DumpBundle(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}

	if *jsonFlag {
		//1.- Render the bundle as JSON so callers can pipe the output elsewhere.
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(bundle); err != nil {
			fmt.Fprintln(os.Stderr, "encode error:", err)
			os.Exit(3)
		}
		return
	}

	fmt.Print(journaldump.Transcript(bundle))
}
