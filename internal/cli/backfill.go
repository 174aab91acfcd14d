package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/working-memory/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Embed chunks that have no embedding yet",
		Run:   runBackfill,
	}

	cmd.Flags().IntP("limit", "l", 500, "Max chunks to embed")
	cmd.Flags().Bool("all", false, "Cover every tenant instead of --tenant")

	RootCmd.AddCommand(cmd)
}

func runBackfill(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	all, _ := cmd.Flags().GetBool("all")

	s, err := openService(cmd)
	if err != nil {
		exitErr("open", err)
	}
	defer s.Close()

	req := memory.BackfillRequest{TenantID: getTenant(), Limit: limit}
	if all {
		req.TenantID = ""
	}
	n, err := s.BackfillEmbeddings(cmd.Context(), req)
	if err != nil {
		exitErr("backfill", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"embedded":%d}`+"\n", n)
}
