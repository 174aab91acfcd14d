package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/working-memory/internal/memory"
	"github.com/rcliao/working-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import events from JSON lines",
		Long: "Import events from stdin in the format produced by export. Events get new ids; " +
			"the tenant is taken from --tenant, not from the input.",
		Run: runImport,
	}

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	s, err := openService(cmd)
	if err != nil {
		exitErr("open", err)
	}
	defer s.Close()

	tenant := getTenant()
	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	imported, line := 0, 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var ev model.Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			exitErr("parse json", fmt.Errorf("line %d: %w", line, err))
		}
		_, err := s.RecordEvent(cmd.Context(), memory.RecordEventRequest{
			TenantID:    tenant,
			SessionID:   ev.SessionID,
			Channel:     ev.Channel,
			ActorType:   ev.Actor.Type,
			ActorID:     ev.Actor.ID,
			Kind:        ev.Kind,
			Sensitivity: ev.Sensitivity,
			Tags:        ev.Tags,
			Content:     ev.Content,
			Data:        ev.Data,
			Refs:        ev.Refs,
			TaskID:      ev.TaskID,
			CreatedAt:   ev.CreatedAt,
		})
		if err != nil {
			exitErr("import", fmt.Errorf("line %d: %w", line, err))
		}
		imported++
	}
	if err := sc.Err(); err != nil {
		exitErr("read stdin", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"imported":%d}`+"\n", imported)
}
