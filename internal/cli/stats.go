package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/working-memory/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		Run:   runStats,
	}

	cmd.Flags().Bool("all", false, "Report every tenant instead of --tenant")

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	all, _ := cmd.Flags().GetBool("all")

	s, err := openService(cmd)
	if err != nil {
		exitErr("open", err)
	}
	defer s.Close()

	req := memory.StatsRequest{TenantID: getTenant()}
	if all {
		req.TenantID = ""
	}
	stats, err := s.Stats(cmd.Context(), req)
	if err != nil {
		exitErr("stats", err)
	}
	printJSON(cmd.OutOrStdout(), stats)
}
