package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/working-memory/internal/memory"
	"github.com/rcliao/working-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "record [content]",
		Short: "Record an event",
		Long:  "Record an interaction event. Content can be a positional arg or piped via stdin.",
		Run:   runRecord,
	}

	cmd.Flags().StringP("session", "s", "", "Session id (required)")
	cmd.Flags().String("channel", "private", "Channel: private, public, team, agent")
	cmd.Flags().String("actor-type", "human", "Actor type: human, agent, tool")
	cmd.Flags().StringP("actor", "a", "", "Actor id (required)")
	cmd.Flags().StringP("kind", "k", "message", "Kind: message, tool_call, tool_result, decision, task_update")
	cmd.Flags().String("sensitivity", "none", "Sensitivity: none, low, high, secret")
	cmd.Flags().StringP("tags", "t", "", "Comma-separated tags")
	cmd.Flags().String("refs", "", "Comma-separated referenced event ids")
	cmd.Flags().String("task", "", "Task id for task_update events")
	cmd.Flags().String("data", "", "Structured JSON payload")
	cmd.Flags().Float64("importance", -1, "Explicit importance in [0,1]")

	cmd.MarkFlagRequired("session")
	cmd.MarkFlagRequired("actor")

	RootCmd.AddCommand(cmd)
}

func runRecord(cmd *cobra.Command, args []string) {
	session, _ := cmd.Flags().GetString("session")
	channel, _ := cmd.Flags().GetString("channel")
	actorType, _ := cmd.Flags().GetString("actor-type")
	actor, _ := cmd.Flags().GetString("actor")
	kind, _ := cmd.Flags().GetString("kind")
	sensitivity, _ := cmd.Flags().GetString("sensitivity")
	tags, _ := cmd.Flags().GetString("tags")
	refs, _ := cmd.Flags().GetString("refs")
	task, _ := cmd.Flags().GetString("task")
	data, _ := cmd.Flags().GetString("data")
	importance, _ := cmd.Flags().GetFloat64("importance")

	content, err := readContent(args)
	if err != nil {
		exitErr("record", err)
	}
	if strings.TrimSpace(content) == "" {
		exitErr("record", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	req := memory.RecordEventRequest{
		TenantID:    getTenant(),
		SessionID:   session,
		Channel:     model.Channel(channel),
		ActorType:   model.ActorType(actorType),
		ActorID:     actor,
		Kind:        model.EventKind(kind),
		Sensitivity: model.Sensitivity(sensitivity),
		Tags:        splitList(tags),
		Content:     strings.TrimSpace(content),
		Refs:        splitList(refs),
		TaskID:      task,
	}
	if data != "" {
		req.Data = []byte(data)
	}
	if cmd.Flags().Changed("importance") {
		req.Importance = &importance
	}

	s, err := openService(cmd)
	if err != nil {
		exitErr("open", err)
	}
	defer s.Close()

	res, err := s.RecordEvent(cmd.Context(), req)
	if err != nil {
		exitErr("record", err)
	}
	printJSON(cmd.OutOrStdout(), res)
}
