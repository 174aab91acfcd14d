package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/working-memory/internal/memory"
)

func init() {
	tenantCmd := &cobra.Command{
		Use:   "tenant",
		Short: "Tenant management",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all tenants",
		Run:   runTenantList,
	}

	forgetCmd := &cobra.Command{
		Use:   "forget",
		Short: "Delete every record of --tenant (irreversible)",
		Run:   runTenantForget,
	}
	forgetCmd.Flags().Bool("yes", false, "Confirm the deletion")

	tenantCmd.AddCommand(listCmd, forgetCmd)
	RootCmd.AddCommand(tenantCmd)
}

func runTenantList(cmd *cobra.Command, args []string) {
	s, err := openService(cmd)
	if err != nil {
		exitErr("open", err)
	}
	defer s.Close()

	stats, err := s.Stats(cmd.Context(), memory.StatsRequest{})
	if err != nil {
		exitErr("list tenants", err)
	}
	if formatFlag == "text" {
		for _, t := range stats.Tenants {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d events\t%d sessions\n", t.TenantID, t.Events, t.Sessions)
		}
		return
	}
	printJSON(cmd.OutOrStdout(), stats.Tenants)
}

func runTenantForget(cmd *cobra.Command, args []string) {
	yes, _ := cmd.Flags().GetBool("yes")
	tenant := getTenant()
	if !yes {
		exitErr("forget", fmt.Errorf("refusing to delete tenant %q without --yes", tenant))
	}

	s, err := openService(cmd)
	if err != nil {
		exitErr("open", err)
	}
	defer s.Close()

	counts, err := s.DeleteTenant(cmd.Context(), memory.DeleteTenantRequest{TenantID: tenant})
	if err != nil {
		exitErr("forget", err)
	}
	printJSON(cmd.OutOrStdout(), counts)
}
