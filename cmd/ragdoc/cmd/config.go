package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jaganraajan/rag-document-parser/configs"
	"github.com/jaganraajan/rag-document-parser/internal/config"
	ragerrors "github.com/jaganraajan/rag-document-parser/internal/errors"
	"github.com/jaganraajan/rag-document-parser/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create configuration",
		Long: `Configuration precedence (lowest to highest):
  1. Built-in defaults
  2. User config ($XDG_CONFIG_HOME/ragdoc/config.yaml)
  3. Project config (.ragdoc.yaml)
  4. Environment variables (APP_ENV, RAGDOC_*, PINECONE_API_KEY)`,
	}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return ragerrors.InternalError("marshal config", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented .ragdoc.yaml",
		Long: `Write the configuration template to .ragdoc.yaml in the project directory.
An existing file is left alone unless --force is given, in which case it is
backed up first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := projectDir()
			if err != nil {
				return err
			}
			path := filepath.Join(dir, config.ProjectConfigName)
			out := output.New(cmd.OutOrStdout())

			if _, err := os.Stat(path); err == nil {
				if !force {
					out.Warningf("%s already exists", path)
					out.Status("", "Use --force to overwrite it (a backup is kept)")
					return nil
				}
				backup, err := config.BackupFile(path)
				if err != nil {
					return ragerrors.ConfigError("back up existing config", err)
				}
				out.Statusf("", "Backup: %s", backup)
			}

			if err := os.WriteFile(path, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
				return ragerrors.ConfigError("write "+path, err)
			}
			out.Successf("Wrote %s", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing .ragdoc.yaml")
	return cmd
}
