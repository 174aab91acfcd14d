package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/working-memory/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "episode [what happened]",
		Short: "Record an episode at the end of a session",
		Run:   runEpisode,
	}

	cmd.Flags().StringP("session", "s", "", "Session id (required)")
	cmd.Flags().StringArray("noticed", nil, "Something noticed (repeatable)")
	cmd.Flags().StringArray("learned", nil, "Something learned (repeatable)")
	cmd.Flags().String("becoming", "", "How the agent is changing")
	cmd.Flags().Float64("significance", 0.5, "Significance in [0,1]")
	cmd.Flags().StringP("tags", "t", "", "Comma-separated tags")

	cmd.MarkFlagRequired("session")

	RootCmd.AddCommand(cmd)
}

func runEpisode(cmd *cobra.Command, args []string) {
	session, _ := cmd.Flags().GetString("session")
	noticed, _ := cmd.Flags().GetStringArray("noticed")
	learned, _ := cmd.Flags().GetStringArray("learned")
	becoming, _ := cmd.Flags().GetString("becoming")
	significance, _ := cmd.Flags().GetFloat64("significance")
	tags, _ := cmd.Flags().GetString("tags")

	happened, err := readContent(args)
	if err != nil {
		exitErr("episode", err)
	}
	if strings.TrimSpace(happened) == "" {
		exitErr("episode", fmt.Errorf("what happened is required (positional arg or stdin)"))
	}

	s, err := openService(cmd)
	if err != nil {
		exitErr("open", err)
	}
	defer s.Close()

	ep, err := s.RecordEpisode(cmd.Context(), memory.RecordEpisodeRequest{
		TenantID:     getTenant(),
		SessionID:    session,
		WhatHappened: strings.TrimSpace(happened),
		WhatNoticed:  noticed,
		WhatLearned:  learned,
		Becoming:     becoming,
		Significance: significance,
		Tags:         splitList(tags),
	})
	if err != nil {
		exitErr("episode", err)
	}
	printJSON(cmd.OutOrStdout(), ep)
}
