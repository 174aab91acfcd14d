package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/working-memory/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search chunks with hybrid keyword and vector retrieval",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().IntP("limit", "l", 10, "Max results")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")

	s, err := openService(cmd)
	if err != nil {
		exitErr("open", err)
	}
	defer s.Close()

	res, err := s.Search(cmd.Context(), memory.SearchRequest{
		TenantID: getTenant(),
		Query:    strings.Join(args, " "),
		Limit:    limit,
	})
	if err != nil {
		exitErr("search", err)
	}

	if formatFlag == "text" {
		for i, c := range res.Chunks {
			fmt.Fprintf(cmd.OutOrStdout(), "%d. [%s] %s\n", i+1, c.ID, c.Text)
		}
		return
	}
	printJSON(cmd.OutOrStdout(), res)
}
