package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/working-memory/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <event-id>",
		Short: "Retrieve an event",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	s, err := openService(cmd)
	if err != nil {
		exitErr("open", err)
	}
	defer s.Close()

	ev, err := s.GetEvent(cmd.Context(), memory.GetEventRequest{EventID: args[0]})
	if err != nil {
		exitErr("get", err)
	}
	printJSON(cmd.OutOrStdout(), ev)
}
