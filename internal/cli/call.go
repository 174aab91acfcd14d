package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/working-memory/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "call <operation> [json]",
		Short: "Invoke an operation with a JSON request",
		Long: "Decode a JSON request for the named operation and run it. The payload can be a " +
			"positional arg or piped via stdin. Operations: " + strings.Join(memory.Operations(), ", "),
		Args: cobra.RangeArgs(1, 2),
		Run:  runCall,
	}

	RootCmd.AddCommand(cmd)
}

func runCall(cmd *cobra.Command, args []string) {
	payload, err := readContent(args[1:])
	if err != nil {
		exitErr("call", err)
	}
	if strings.TrimSpace(payload) == "" {
		payload = "{}"
	}

	req, err := memory.DecodeRequest(args[0], []byte(payload))
	if err != nil {
		exitErr("call", err)
	}

	s, err := openService(cmd)
	if err != nil {
		exitErr("open", err)
	}
	defer s.Close()

	out, err := s.Do(cmd.Context(), req)
	if err != nil {
		exitErr(fmt.Sprintf("call %s", req.Operation()), err)
	}
	printJSON(cmd.OutOrStdout(), out)
}
