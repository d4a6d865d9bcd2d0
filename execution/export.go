package execution

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	scriptdesk "github.com/goliatone/go-scriptdesk"
	"github.com/goliatone/go-scriptdesk/script"
)

// ExportFilename is the download name for the execution with the given id.
func ExportFilename(id string) string {
	return fmt.Sprintf("script_execution_%s.txt", id)
}

// ExportText renders rec as a plain-text document. Only completed records
// are exported.
func ExportText(rec Record) (string, error) {
	if rec.Status != StatusCompleted {
		return "", scriptdesk.CloneError(scriptdesk.ErrExportNotCompleted, "", nil, map[string]any{
			"execution_id": rec.ID,
			"status":       string(rec.Status),
		})
	}

	var b strings.Builder
	line := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(&b, "%s: %s\n", label, value)
	}

	line("Script ID", rec.ScriptID)
	line("Script Name", rec.ScriptName)
	line("Script Type", rec.ScriptType)
	line("Execution ID", rec.ID)
	line("Execution Name", rec.ExecutionName)
	line("Status", string(rec.Status))
	line("Requested By", rec.RequestedBy)
	line("Approved By", rec.ApprovedBy)
	line("Start Time", formatTime(&rec.StartTime))
	line("End Time", formatTime(rec.EndTime))
	fmt.Fprintf(&b, "Result: %s\n", rec.Result)

	if len(rec.Inputs) > 0 {
		b.WriteString("\nInputs:\n")
		names := make([]string, 0, len(rec.Inputs))
		for name := range rec.Inputs {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			writeInput(&b, name, rec.Inputs[name])
		}
	}
	return b.String(), nil
}

func writeInput(b *strings.Builder, name string, v script.Value) {
	switch v.Kind() {
	case script.KindTable:
		fmt.Fprintf(b, "  %s:\n", name)
		for i, row := range v.Rows() {
			keys := make([]string, 0, len(row))
			for k := range row {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			cells := make([]string, 0, len(keys))
			for _, k := range keys {
				cells = append(cells, k+"="+row[k])
			}
			fmt.Fprintf(b, "    %d. %s\n", i+1, strings.Join(cells, ", "))
		}
	default:
		fmt.Fprintf(b, "  %s: %s\n", name, v.String())
	}
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// WriteExport writes the export of rec into dir and returns the file path.
func WriteExport(ctx context.Context, dir string, rec Record) (string, error) {
	text, err := ExportText(rec)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !isDecimalID(rec.ID) {
		return "", scriptdesk.CloneError(scriptdesk.ErrValidation, "execution id is not exportable", nil, map[string]any{
			"execution_id": rec.ID,
		})
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", scriptdesk.CloneError(scriptdesk.ErrStorageFailed, "create export directory", err, map[string]any{"dir": dir})
	}
	path := filepath.Join(dir, ExportFilename(rec.ID))
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", scriptdesk.CloneError(scriptdesk.ErrStorageFailed, "write export", err, map[string]any{"path": path})
	}
	return path, nil
}

// isDecimalID reports whether id has the shape IDGenerator issues, which
// keeps a stored id from steering the export path.
func isDecimalID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
