package execution

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	scriptdesk "github.com/goliatone/go-scriptdesk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completedRecord() Record {
	rec := newRecord("1718000000000", "Admin User", StatusCompleted)
	rec.ApprovedBy = "Admin User"
	rec.Result = "Script executed successfully"
	end := baseTime.Add(4 * time.Second)
	rec.EndTime = &end
	return rec
}

func TestExportText(t *testing.T) {
	text, err := ExportText(completedRecord())
	require.NoError(t, err)

	assert.Contains(t, text, "Script ID: 1\n")
	assert.Contains(t, text, "Execution ID: 1718000000000\n")
	assert.Contains(t, text, "Status: completed\n")
	assert.Contains(t, text, "Result: Script executed successfully\n")
	assert.Contains(t, text, "Start Time: 2026-03-14T09:30:00Z\n")
	assert.Contains(t, text, "End Time: 2026-03-14T09:30:04Z\n")
	assert.Contains(t, text, "  hosts: web-1, web-2\n")
	assert.Contains(t, text, "    1. quantity=4, sku=ABC123\n")
	assert.NotContains(t, text, "Rejected")
}

func TestExportRequiresCompleted(t *testing.T) {
	for _, status := range Statuses() {
		if status == StatusCompleted {
			continue
		}
		rec := completedRecord()
		rec.Status = status
		_, err := ExportText(rec)
		assert.True(t, scriptdesk.HasCode(err, scriptdesk.CodeExportNotCompleted), status)
	}
}

func TestWriteExport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	rec := completedRecord()

	path, err := WriteExport(context.Background(), dir, rec)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "script_execution_1718000000000.txt"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Status: completed")

	rec.Status = StatusRunning
	_, err = WriteExport(context.Background(), dir, rec)
	assert.True(t, scriptdesk.HasCode(err, scriptdesk.CodeExportNotCompleted))
}

func TestWriteExportRejectsUnsafeIDs(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "exports")

	for _, id := range []string{"../escape", "12/34", "..", "", "-1", "12a"} {
		rec := completedRecord()
		rec.ID = id
		_, err := WriteExport(context.Background(), dir, rec)
		assert.True(t, scriptdesk.HasCode(err, scriptdesk.CodeValidationFailed), "id %q", id)
	}

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing is written for rejected ids")
}

func TestIDGeneratorIsStrictlyIncreasing(t *testing.T) {
	fixed := time.UnixMilli(1_000)
	gen := NewIDGeneratorWithClock(func() time.Time { return fixed })

	assert.Equal(t, "1000", gen.Next())
	assert.Equal(t, "1001", gen.Next())

	gen.Seed("5000", "not-a-number", "42")
	assert.Equal(t, "5001", gen.Next())
}

func TestIDGeneratorConcurrentUnique(t *testing.T) {
	gen := NewIDGenerator()
	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				id := gen.Next()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 800)
}

func TestStatusHelpers(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusRejected.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusAboutToRun.Terminal())
	assert.True(t, StatusAboutToRun.Valid())
	assert.False(t, Status("about_to_run").Valid())
}
