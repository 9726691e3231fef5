// Command carevoice is the entry point for the customer-care retrieval and
// learning engine. It provides a CLI (via Cobra) for ingestion, search, and
// learning administration, plus an HTTP server exposing the engine's API.
package main

import (
	"fmt"
	"os"

	"github.com/kaziNymul/carevoice-go/cmd/carevoice/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
