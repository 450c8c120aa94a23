// Command ragdoc ingests chunked documents and answers hybrid retrieval
// queries over them.
package main

import (
	"os"

	"github.com/jaganraajan/rag-document-parser/cmd/ragdoc/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
