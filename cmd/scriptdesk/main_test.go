package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-scriptdesk/app"
	"github.com/goliatone/go-scriptdesk/execution"
	"github.com/goliatone/go-scriptdesk/logging"
)

type harness struct {
	t       *testing.T
	config  string
	exports string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	exports := filepath.Join(dir, "exports")
	cfg := fmt.Sprintf(`
storage:
  backend: file
  dir: %s
runner:
  start_delay: 5ms
  complete_delay: 10ms
export:
  dir: %s
`, filepath.Join(dir, "state"), exports)
	path := filepath.Join(dir, "scriptdesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return &harness{t: t, config: path, exports: exports}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var out bytes.Buffer
	args = append([]string{"--config", h.config}, args...)
	err := execute(context.Background(), args, &out, app.WithLogger(logging.Nop{}))
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, out)
	return out
}

func (h *harness) records() []execution.Record {
	h.t.Helper()
	var recs []execution.Record
	require.NoError(h.t, json.Unmarshal([]byte(h.mustRun("-o", "json", "executions", "list")), &recs))
	return recs
}

var processingArgs = []string{
	"submit", "2",
	"--set", "file_type=CSV",
	"--set", "file_name=users.csv",
	"--set", "processing_type=cleanup",
	"--set", "keep_log=yes",
	"--set", "run_integrity_checks=yes",
	"--set", "output_format=JSON",
	"--set", "output_file_name=users.json",
	"--set", "compression=none",
}

func submitArgs(name string, extra ...string) []string {
	args := append([]string{}, processingArgs...)
	args = append(args, "--name", name)
	return append(args, extra...)
}

func TestScriptsList(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun("scripts", "list")
	assert.Contains(t, out, "Basic Data Processing")
	assert.Contains(t, out, "Extended Users Report")

	out = h.mustRun("scripts", "--search", "survey")
	assert.Contains(t, out, "Customer Satisfaction Survey")
	assert.NotContains(t, out, "Basic Data Processing")
}

func TestScriptsShowJSON(t *testing.T) {
	h := newHarness(t)
	var view scriptView
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("-o", "json", "scripts", "show", "2")), &view))
	assert.Equal(t, "Basic Data Processing", view.Name)
	require.NotEmpty(t, view.Sections)
	assert.Equal(t, "data_source", view.Sections[0].ID)
}

func TestSubmitRunsAndExports(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun(submitArgs("cli run")...)
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "Script executed successfully")

	recs := h.records()
	require.Len(t, recs, 1)
	assert.Equal(t, execution.StatusCompleted, recs[0].Status)
	assert.Equal(t, "users.csv", recs[0].Inputs.Text("file_name"))

	out = h.mustRun("executions", "export", recs[0].ID)
	path := strings.TrimSpace(out)
	assert.Equal(t, filepath.Join(h.exports, execution.ExportFilename(recs[0].ID)), path)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Execution Name: cli run")

	out = h.mustRun("executions", "export", "--stdout", recs[0].ID)
	assert.Equal(t, string(content), out)
}

func TestSubmitInvalidFormListsErrors(t *testing.T) {
	h := newHarness(t)
	out, err := h.run("submit", "2", "--name", "incomplete", "--set", "file_type=CSV")
	require.Error(t, err)
	assert.Contains(t, out, "file_name")
	assert.Empty(t, h.records())
}

func TestSubmitUnknownInput(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(submitArgs("typo", "--set", "nope=1")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestApprovalFlowAcrossInvocations(t *testing.T) {
	h := newHarness(t)
	h.mustRun("user", "switch", "2")
	assert.Contains(t, h.mustRun("user", "show"), "Regular User")

	out := h.mustRun(submitArgs("needs approval")...)
	assert.Contains(t, out, "pending_approval")
	id := h.records()[0].ID

	_, err := h.run("approve", id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")

	h.mustRun("user", "switch", "1")
	out = h.mustRun("approve", id)
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "Admin User")

	out = h.mustRun("rerun", id)
	assert.Contains(t, out, "needs approval (rerun)")
	assert.Len(t, h.records(), 2)
}

func TestRejectFlow(t *testing.T) {
	h := newHarness(t)
	h.mustRun("user", "switch", "2")
	h.mustRun(submitArgs("to reject")...)
	id := h.records()[0].ID
	h.mustRun("user", "switch", "1")

	_, err := h.run("reject", id)
	require.Error(t, err)

	out := h.mustRun("reject", id, "--reason", "wrong window")
	assert.Contains(t, out, "rejected")
	assert.Contains(t, out, "wrong window")

	_, err = h.run("executions", "export", id)
	require.Error(t, err)
}

func TestExecutionsListFilters(t *testing.T) {
	h := newHarness(t)
	h.mustRun(submitArgs("alpha")...)
	h.mustRun("user", "switch", "2")
	h.mustRun(submitArgs("beta")...)

	// regular users only see their own records
	assert.Len(t, h.records(), 1)

	h.mustRun("user", "switch", "1")
	out := h.mustRun("executions", "--status", "pending_approval")
	assert.Contains(t, out, "beta")
	assert.NotContains(t, out, "alpha")

	out = h.mustRun("executions", "--where", `.executionName | startswith("al")`)
	assert.Contains(t, out, "alpha")
	assert.NotContains(t, out, "beta")

	_, err := h.run("executions", "--status", "bogus")
	require.Error(t, err)
	_, err = h.run("executions", "--since", "yesterday")
	require.Error(t, err)
}

func TestUserList(t *testing.T) {
	h := newHarness(t)
	out := h.mustRun("user", "list")
	assert.Contains(t, out, "Admin User")
	assert.Contains(t, out, "Regular User")

	_, err := h.run("user", "switch", "42")
	require.Error(t, err)
}

func TestWatchStopsAfterDuration(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("watch", "--for", "20ms", "--metrics")
	require.NoError(t, err)
}
