package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/working-memory/internal/memory"
	"github.com/rcliao/working-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:       "list <episodes|principles>",
		Short:     "List consolidated memory",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"episodes", "principles"},
		Run:       runList,
	}

	cmd.Flags().String("level", "", "Episodes only: full, summary, quick_ref, integrated")
	cmd.Flags().IntP("limit", "l", 20, "Max results")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	level, _ := cmd.Flags().GetString("level")
	limit, _ := cmd.Flags().GetInt("limit")

	s, err := openService(cmd)
	if err != nil {
		exitErr("open", err)
	}
	defer s.Close()

	tenant := getTenant()
	switch args[0] {
	case "episodes":
		eps, err := s.ListEpisodes(cmd.Context(), memory.ListEpisodesRequest{
			TenantID: tenant,
			Level:    model.CompressionLevel(level),
			Limit:    limit,
		})
		if err != nil {
			exitErr("list", err)
		}
		if formatFlag == "text" {
			for _, ep := range eps {
				fmt.Fprintf(cmd.OutOrStdout(), "%s [%s %.2f] %s\n", ep.ID, ep.CompressionLevel, ep.MemoryStrength, ep.Text())
			}
			return
		}
		printJSON(cmd.OutOrStdout(), eps)

	case "principles":
		prs, err := s.ListPrinciples(cmd.Context(), memory.ListPrinciplesRequest{TenantID: tenant, Limit: limit})
		if err != nil {
			exitErr("list", err)
		}
		if formatFlag == "text" {
			for _, p := range prs {
				fmt.Fprintf(cmd.OutOrStdout(), "%.2f %s (%d sources)\n", p.Confidence, p.Principle, p.SourceCount)
			}
			return
		}
		printJSON(cmd.OutOrStdout(), prs)
	}
}
