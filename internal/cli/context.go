package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/working-memory/internal/acb"
	"github.com/rcliao/working-memory/internal/memory"
	"github.com/rcliao/working-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context [query]",
		Short: "Assemble an active context bundle",
		Long: "Gather rules, the session's recent window, retrieved evidence and relevant decisions, " +
			"then pack them into a token budget.",
		Run: runContext,
	}

	cmd.Flags().StringP("session", "s", "", "Session id (required)")
	cmd.Flags().String("agent", "", "Agent id, selects agent-scoped rules")
	cmd.Flags().String("channel", "private", "Channel: private, public, team, agent")
	cmd.Flags().StringP("intent", "i", "", "Intent, selects a scoring profile")
	cmd.Flags().IntP("budget", "b", 4000, "Max tokens in the bundle")

	cmd.MarkFlagRequired("session")

	RootCmd.AddCommand(cmd)
}

func runContext(cmd *cobra.Command, args []string) {
	session, _ := cmd.Flags().GetString("session")
	agent, _ := cmd.Flags().GetString("agent")
	channel, _ := cmd.Flags().GetString("channel")
	intent, _ := cmd.Flags().GetString("intent")
	budget, _ := cmd.Flags().GetInt("budget")

	s, err := openService(cmd)
	if err != nil {
		exitErr("open", err)
	}
	defer s.Close()

	bundle, err := s.BuildContext(cmd.Context(), memory.BuildContextRequest{
		TenantID:  getTenant(),
		SessionID: session,
		AgentID:   agent,
		Channel:   model.Channel(channel),
		Intent:    intent,
		Query:     strings.Join(args, " "),
		MaxTokens: budget,
	})
	if err != nil {
		exitErr("context", err)
	}

	if formatFlag == "text" {
		fmt.Fprint(cmd.OutOrStdout(), acb.String(bundle))
		return
	}
	printJSON(cmd.OutOrStdout(), bundle)
}
