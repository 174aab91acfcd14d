package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/working-memory/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Create or remove task dependency edges",
		Long:  "Record that task --from depends on task --to. Edges that would close a cycle are rejected.",
		Run:   runLink,
	}

	cmd.Flags().String("from", "", "Dependent task id")
	cmd.Flags().String("to", "", "Task it depends on")
	cmd.Flags().Bool("rm", false, "Remove the link")

	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")

	edges := &cobra.Command{
		Use:   "links [task]",
		Short: "List task dependency edges",
		Args:  cobra.MaximumNArgs(1),
		Run:   runLinks,
	}

	RootCmd.AddCommand(cmd, edges)
}

func runLink(cmd *cobra.Command, args []string) {
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	rm, _ := cmd.Flags().GetBool("rm")

	s, err := openService(cmd)
	if err != nil {
		exitErr("open", err)
	}
	defer s.Close()

	req := memory.LinkTasksRequest{TenantID: getTenant(), From: from, To: to}
	if rm {
		if err := s.UnlinkTasks(cmd.Context(), memory.UnlinkTasksRequest(req)); err != nil {
			exitErr("unlink", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"removed":true,"from":%q,"to":%q}`+"\n", from, to)
		return
	}

	edge, err := s.LinkTasks(cmd.Context(), req)
	if err != nil {
		exitErr("link", err)
	}
	printJSON(cmd.OutOrStdout(), edge)
}

func runLinks(cmd *cobra.Command, args []string) {
	var task string
	if len(args) > 0 {
		task = args[0]
	}

	s, err := openService(cmd)
	if err != nil {
		exitErr("open", err)
	}
	defer s.Close()

	edges, err := s.TaskEdges(cmd.Context(), memory.TaskEdgesRequest{TenantID: getTenant(), Task: task})
	if err != nil {
		exitErr("links", err)
	}
	if formatFlag == "text" {
		for _, e := range edges {
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", e.From, e.To)
		}
		return
	}
	printJSON(cmd.OutOrStdout(), edges)
}
