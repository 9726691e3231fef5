// Package commands defines all Cobra CLI commands for the carevoice binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/kaziNymul/carevoice-go/internal/audit"
	"github.com/kaziNymul/carevoice-go/internal/config"
	"github.com/kaziNymul/carevoice-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "carevoice",
		Short: "carevoice — retrieval and learning engine for customer support assistants",
		Long: `carevoice is the knowledge engine behind a voice/text customer support
assistant. It indexes support documentation into a vector store, retrieves
relevant context for incoming questions, and learns from past conversations:
recording exchanges, collecting feedback, and promoting well-received answers
back into the knowledge base.

The embedding provider is selected via the EMBEDDING_PROVIDER environment
variable or a YAML config file (~/.carevoice/config.yaml). With no provider
("none") retrieval degrades to keyword search and learning is unavailable.
See 'carevoice --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.carevoice/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewSearchCmd(),
		NewLearnCmd(),
		NewIndexCmd(),
		NewOpsCmd(),
		NewVersionCmd(),
	)

	return root
}
