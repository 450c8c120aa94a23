// Package cmd implements the ragdoc command line.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	ragerrors "github.com/jaganraajan/rag-document-parser/internal/errors"
	"github.com/jaganraajan/rag-document-parser/internal/logging"
	"github.com/jaganraajan/rag-document-parser/pkg/version"
)

var (
	debugMode      bool
	configDir      string
	loggingCleanup func()
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ragdoc",
		Short: "Hybrid retrieval over chunked documents",
		Long: `ragdoc ingests pre-chunked documents into a dense index, a sparse TF-IDF
index and a local BM25 corpus, then answers queries by fusing and ranking
the results of all three.

Backends are local by default. Set dense.backend or sparse.backend to
"pinecone" in .ragdoc.yaml and export PINECONE_API_KEY to use hosted
indexes.`,
		Version:           version.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: startLogging,
		PersistentPostRun: func(*cobra.Command, []string) { stopLogging() },
	}
	cmd.SetVersionTemplate("ragdoc version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Project directory holding .ragdoc.yaml (default: working directory)")

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newBM25Cmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newEvalCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// startLogging installs the default logger. serve replaces it with a
// file-only logger because stdio belongs to the MCP transport.
func startLogging(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "serve" {
		return nil
	}
	cfg := logging.ConfigForEnv(os.Getenv("APP_ENV"))
	cfg.WriteToStderr = false
	if debugMode {
		cfg.Level = "debug"
		cfg.WriteToStderr = true
	}
	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func stopLogging() {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
}

// Execute runs the root command and prints a failed command's error.
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		stopLogging()
		fmt.Fprint(root.ErrOrStderr(), ragerrors.FormatForCLI(err))
	}
	return err
}
