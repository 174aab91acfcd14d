// Package cli implements the working-memory CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/working-memory/internal/config"
	"github.com/rcliao/working-memory/internal/logger"
	"github.com/rcliao/working-memory/internal/memory"
)

var (
	dbPath     string
	configPath string
	formatFlag string
	tenantFlag string
	logLevel   string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "working-memory",
	Short: "Bounded working memory for conversational agents",
	Long: "Record agent events, assemble token-bounded context bundles, and consolidate " +
		"episodes into principles and reflections. SQLite-backed, single binary.",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $WORKING_MEMORY_DB or ~/.working-memory/memory.db)")
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (yaml or json)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
	RootCmd.PersistentFlags().StringVarP(&tenantFlag, "tenant", "T", "", "Tenant id (default: $WORKING_MEMORY_TENANT or \"default\")")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	return os.Getenv("WORKING_MEMORY_DB")
}

func getTenant() string {
	if tenantFlag != "" {
		return tenantFlag
	}
	if env := os.Getenv("WORKING_MEMORY_TENANT"); env != "" {
		return env
	}
	return "default"
}

func loadConfig() (*config.Config, error) {
	overrides := map[string]any{}
	if p := getDBPath(); p != "" {
		overrides["store.path"] = p
	}
	if logLevel != "" {
		overrides["log.level"] = logLevel
	}
	if metricsAddr != "" {
		overrides["metrics.enabled"] = true
	}
	return config.Load(configPath, overrides)
}

func openService(cmd *cobra.Command) (*memory.Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	logger.SetGlobal(log)
	return memory.New(cmd.Context(), cfg, memory.WithLogger(log))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	if memory.IsRetryable(err) {
		os.Exit(75) // EX_TEMPFAIL
	}
	os.Exit(1)
}

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(b))
}

// readContent joins positional args, or reads piped stdin when there are none.
func readContent(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	return "", nil
}

func splitList(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
