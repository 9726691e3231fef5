package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kaziNymul/carevoice-go/internal/config"
	"github.com/kaziNymul/carevoice-go/internal/logging"
)

// NewOpsCmd constructs the `carevoice ops` command, which lists recent
// administrative operations from the local operations log.
func NewOpsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "ops",
		Short: "List recent administrative operations",
		Long: `List recent administrative operations recorded in the local operations
log: ingestions, index changes, feedback updates, and promotions. Newest
entries first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			cfg := config.Resolve()

			opLog, closeOpLog := openOpLog(cfg, log)
			defer closeOpLog()

			entries, err := opLog.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("ops: %w", err)
			}
			if len(entries) == 0 {
				fmt.Println("No recorded operations.")
				return nil
			}
			for _, e := range entries {
				line := fmt.Sprintf("%s  %-12s %s", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Operation, e.Target)
				if e.Detail != "" {
					line += "  (" + e.Detail + ")"
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of entries to list")
	return cmd
}
