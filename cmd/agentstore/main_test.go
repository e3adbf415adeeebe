package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/agentstore"
	"github.com/poiesic/agentstore/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func seedDatabase(t *testing.T, dir string) {
	t.Helper()
	ctx := context.Background()
	db, err := agentstore.Open(ctx, agentstore.NewConfig(agentstore.WithBadgerPath(dir)))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Threads().SaveThread(ctx, &core.Thread{ID: "t1", ResourceID: "r1", Title: "first"})
	require.NoError(t, err)
	_, err = db.Messages().SaveMessages(ctx,
		&core.Message{ID: "m1", ThreadID: "t1", Role: core.RoleUser, Content: "hello"},
		&core.Message{ID: "m2", ThreadID: "t1", Role: core.RoleAssistant, Content: "hi"},
	)
	require.NoError(t, err)
	require.NoError(t, db.Workflows().PersistWorkflowSnapshot(ctx, "wf", "run-1", "r1", core.WorkflowRunState{RunID: "run-1", Status: core.WorkflowRunning}))
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := newApp(&stdout, &stderr).Run(append([]string{"agentstore", "--log-level", "error"}, args...))
	return stdout.String(), stderr.String(), err
}

func TestStatsCommand(t *testing.T) {
	dir := t.TempDir()
	seedDatabase(t, dir)

	out, _, err := run(t, "--db", dir, "stats")
	require.NoError(t, err)

	var counts map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &counts))
	assert.Equal(t, 1, counts["threads"])
	assert.Equal(t, 2, counts["messages"])
	assert.Equal(t, 1, counts["workflow_snapshots"])
	assert.Equal(t, 0, counts["scores"])
}

func TestThreadsAndMessagesCommands(t *testing.T) {
	dir := t.TempDir()
	seedDatabase(t, dir)

	out, _, err := run(t, "--db", dir, "threads", "--resource", "r1")
	require.NoError(t, err)
	assert.Contains(t, out, `"title": "first"`)
	assert.Contains(t, out, `"total": 1`)

	out, _, err = run(t, "--db", dir, "messages", "--thread", "t1", "--last", "1")
	require.NoError(t, err)
	assert.Contains(t, out, `"m2"`)
	assert.NotContains(t, out, `"m1"`)
}

func TestRunCommands(t *testing.T) {
	dir := t.TempDir()
	seedDatabase(t, dir)

	out, _, err := run(t, "--db", dir, "runs", "--workflow", "wf")
	require.NoError(t, err)
	assert.Contains(t, out, `"run-1"`)

	out, _, err = run(t, "--db", dir, "run", "--id", "run-1")
	require.NoError(t, err)
	assert.Contains(t, out, `"workflowName": "wf"`)

	_, _, err = run(t, "--db", dir, "run", "--id", "nope")
	assert.ErrorContains(t, err, "not found")
}

func TestDeleteThreadCommand(t *testing.T) {
	dir := t.TempDir()
	seedDatabase(t, dir)

	_, stderr, err := run(t, "--db", dir, "delete-thread", "--id", "t1")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Deleted thread t1")

	out, _, err := run(t, "--db", dir, "stats")
	require.NoError(t, err)
	var counts map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &counts))
	assert.Zero(t, counts["threads"])
	assert.Zero(t, counts["messages"])
}

func TestCopyCommand(t *testing.T) {
	src := t.TempDir()
	seedDatabase(t, src)

	dst := filepath.Join(t.TempDir(), "copy")
	target := filepath.Join(t.TempDir(), "target.yaml")
	require.NoError(t, agentstore.NewConfig(agentstore.WithBadgerPath(dst), agentstore.WithCollectionPrefix("bak_")).Save(target))

	_, stderr, err := run(t, "--db", src, "copy", "--to", target, "--collection", "threads", "--collection", "messages")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Copied 3 documents from 2 collections")

	out, _, err := run(t, "--db", dst, "--prefix", "bak_", "stats")
	require.NoError(t, err)
	var counts map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &counts))
	assert.Equal(t, 1, counts["threads"])
	assert.Equal(t, 2, counts["messages"])
	assert.Zero(t, counts["workflow_snapshots"])
}

func TestWriteConfigCommand(t *testing.T) {
	out := filepath.Join(t.TempDir(), "agentstore.yaml")
	_, _, err := run(t, "--db", "/var/lib/agentstore", "--prefix", "x_", "write-config", "--out", out)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "path: /var/lib/agentstore")
	assert.Contains(t, string(data), "collection_prefix: x_")
}

func TestRequiredFlags(t *testing.T) {
	_, _, err := run(t, "threads")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resource")

	_, _, err = run(t, "copy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "to")
}

func TestSetupLogger_InvalidLevel(t *testing.T) {
	app := newApp(&bytes.Buffer{}, &bytes.Buffer{})
	app.Commands = []*cli.Command{{Name: "noop", Action: func(*cli.Context) error { return nil }}}

	err := app.Run([]string{"agentstore", "--log-level", "chatty", "noop"})
	assert.ErrorContains(t, err, "invalid log level")
}
