package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/rcliao/working-memory/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a tenant's events as JSON lines",
		Long:  "Export every event of the tenant as newline-delimited JSON, oldest first. The output is accepted by import.",
		Run:   runExport,
	}

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	s, err := openService(cmd)
	if err != nil {
		exitErr("open", err)
	}
	defer s.Close()

	events, err := s.ExportTenant(cmd.Context(), memory.ExportTenantRequest{TenantID: getTenant()})
	if err != nil {
		exitErr("export", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			exitErr("export", err)
		}
	}
}
