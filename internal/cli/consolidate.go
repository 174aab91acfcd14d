package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/working-memory/internal/logger"
	"github.com/rcliao/working-memory/internal/memory"
	"github.com/rcliao/working-memory/internal/model"
)

var metricsAddr string

func init() {
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Run one consolidation tier",
		Long: "Collect episodes in the tier's window, extract principles, write a reflection, " +
			"compress episodes one level and apply decay. Runs once, or every --every until interrupted.",
		Run: runConsolidate,
	}

	cmd.Flags().String("tier", "short", "Tier: short, medium, long")
	cmd.Flags().Duration("every", 0, "Repeat at this interval until interrupted (0 runs once)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while repeating")

	RootCmd.AddCommand(cmd)
}

func runConsolidate(cmd *cobra.Command, args []string) {
	tier, _ := cmd.Flags().GetString("tier")
	every, _ := cmd.Flags().GetDuration("every")

	s, err := openService(cmd)
	if err != nil {
		exitErr("open", err)
	}
	defer s.Close()

	req := memory.ConsolidationRequest{TenantID: getTenant(), Tier: model.Tier(tier)}
	if every <= 0 {
		res, err := s.RunConsolidation(cmd.Context(), req)
		if err != nil {
			exitErr("consolidate", err)
		}
		printJSON(cmd.OutOrStdout(), res)
		return
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.Metrics().Handler())
		srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Global().Error("metrics server failed", "addr", metricsAddr, "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		res, err := s.RunConsolidation(ctx, req)
		switch {
		case err != nil && ctx.Err() != nil:
			return
		case errors.Is(err, memory.ErrValidation):
			exitErr("consolidate", err)
		case err != nil:
			// decay failures are retried on the next tick
			logger.Global().Error("consolidation failed", "tier", tier, "error", err)
		default:
			printJSON(cmd.OutOrStdout(), res)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
