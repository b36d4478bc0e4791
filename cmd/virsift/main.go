// Command virsift curates viral sequence collections: it ingests FASTA
// files, applies filters and samplers to persisted sessions, builds clone
// timelines and exports reproducible curated sets.
package main

import (
	"os"
)

const version = "0.4.0"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		failed.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
