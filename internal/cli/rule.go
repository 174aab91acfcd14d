package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/working-memory/internal/memory"
	"github.com/rcliao/working-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rule <text>",
		Short: "Add a rule that is always placed first in context bundles",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRule,
	}

	cmd.Flags().String("agent", "", "Only for this agent id")
	cmd.Flags().String("channel", "", "Only on this channel")
	cmd.Flags().Float64P("priority", "p", 0.5, "Priority in [0,1]; higher rules are packed first")

	RootCmd.AddCommand(cmd)
}

func runRule(cmd *cobra.Command, args []string) {
	agent, _ := cmd.Flags().GetString("agent")
	channel, _ := cmd.Flags().GetString("channel")
	priority, _ := cmd.Flags().GetFloat64("priority")

	s, err := openService(cmd)
	if err != nil {
		exitErr("open", err)
	}
	defer s.Close()

	r, err := s.PutRule(cmd.Context(), memory.PutRuleRequest{
		TenantID: getTenant(),
		AgentID:  agent,
		Channel:  model.Channel(channel),
		Text:     strings.Join(args, " "),
		Priority: priority,
	})
	if err != nil {
		exitErr("rule", err)
	}
	printJSON(cmd.OutOrStdout(), r)
}
