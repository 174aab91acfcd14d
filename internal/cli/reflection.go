package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/working-memory/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reflection",
		Short: "Show the latest reflection",
		Run:   runReflection,
	}

	RootCmd.AddCommand(cmd)
}

func runReflection(cmd *cobra.Command, args []string) {
	s, err := openService(cmd)
	if err != nil {
		exitErr("open", err)
	}
	defer s.Close()

	r, err := s.LatestReflection(cmd.Context(), memory.LatestReflectionRequest{TenantID: getTenant()})
	if err != nil {
		exitErr("reflection", err)
	}
	if formatFlag == "text" {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s reflection (%s), %s to %s\n\n%s\n", r.Tier, r.Source,
			r.PeriodStart.Format("2006-01-02"), r.PeriodEnd.Format("2006-01-02"), r.Summary)
		if len(r.KeyInsights) > 0 {
			fmt.Fprintf(w, "\nInsights:\n- %s\n", strings.Join(r.KeyInsights, "\n- "))
		}
		if len(r.Themes) > 0 {
			fmt.Fprintf(w, "\nThemes: %s\n", strings.Join(r.Themes, ", "))
		}
		return
	}
	printJSON(cmd.OutOrStdout(), r)
}
