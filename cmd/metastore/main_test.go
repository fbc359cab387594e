package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/metastore"
	"github.com/hupe1980/metastore/gc"
	"github.com/hupe1980/metastore/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) (path, storeRoot string) {
	t.Helper()
	dir := t.TempDir()
	storeRoot = filepath.Join(dir, "store")
	path = filepath.Join(dir, "metastore.yaml")
	content := fmt.Sprintf(`
backend:
  type: sqlite
  sqlite_path: %s
store:
  type: local
  root: %s
gc:
  grace_period: 0s
server:
  log_level: error
`, filepath.Join(dir, "metastore.db"), storeRoot)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path, storeRoot
}

func run(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, configPath string, args ...string) string {
	t.Helper()
	out, err := run(t, configPath, args...)
	require.NoError(t, err, out)
	return out
}

func decode[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func TestIndexCommands(t *testing.T) {
	cfg, _ := writeConfig(t)

	idx := decode[model.IndexMetadata](t, mustRun(t, cfg, "index", "create", "logs-2024", "--uri", "file:///tmp/logs"))
	assert.Equal(t, "logs-2024", idx.IndexID)
	assert.Equal(t, uint64(1), idx.Version)

	_, err := run(t, cfg, "index", "create", "logs-2024")
	assert.ErrorIs(t, err, metastore.ErrAlreadyExists)

	got := decode[model.IndexMetadata](t, mustRun(t, cfg, "index", "get", "logs-2024"))
	assert.Equal(t, "file:///tmp/logs", got.IndexURI)

	list := decode[[]model.IndexMetadata](t, mustRun(t, cfg, "index", "list"))
	assert.Len(t, list, 1)

	mustRun(t, cfg, "index", "delete", "logs-2024")
	_, err = run(t, cfg, "index", "get", "logs-2024")
	assert.ErrorIs(t, err, metastore.ErrNotFound)
}

func TestIndexCreate_Config(t *testing.T) {
	cfg, _ := writeConfig(t)
	dir := t.TempDir()

	good := filepath.Join(dir, "good.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"doc_mapping":{"mode":"dynamic"}}`), 0o600))
	idx := decode[model.IndexMetadata](t, mustRun(t, cfg, "index", "create", "logs", "--index-config", good))
	assert.JSONEq(t, `{"doc_mapping":{"mode":"dynamic"}}`, string(idx.Config))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{`), 0o600))
	_, err := run(t, cfg, "index", "create", "other", "--index-config", bad)
	assert.Error(t, err)
}

func TestSplitCommands(t *testing.T) {
	cfg, _ := writeConfig(t)
	mustRun(t, cfg, "index", "create", "logs")

	ids := decode[[]string](t, mustRun(t, cfg, "split", "stage", "logs", "--split-id", "s1", "--start", "0", "--end", "10", "--tag", "tenant:a"))
	assert.Equal(t, []string{"s1"}, ids)

	generated := decode[[]string](t, mustRun(t, cfg, "split", "stage", "logs", "--num-docs", "5"))
	require.Len(t, generated, 1)
	assert.NotEmpty(t, generated[0])

	batch := filepath.Join(t.TempDir(), "splits.json")
	require.NoError(t, os.WriteFile(batch, []byte(`[{"split_id":"s2"},{"split_id":"s3"}]`), 0o600))
	assert.Equal(t, []string{"s2", "s3"}, decode[[]string](t, mustRun(t, cfg, "split", "stage", "logs", "--file", batch)))

	_, err := run(t, cfg, "split", "stage", "logs", "--split-id", "s1")
	assert.ErrorIs(t, err, metastore.ErrDuplicateSplit)

	mustRun(t, cfg, "split", "publish", "logs", "s1", "s2")
	mustRun(t, cfg, "split", "publish", "logs", "s3", "--replace", "s2")

	_, err = run(t, cfg, "split", "publish", "logs", "s1")
	assert.ErrorIs(t, err, metastore.ErrInvalidStateTransition)

	published := decode[[]model.SplitMetadata](t, mustRun(t, cfg, "split", "list", "logs", "--state", "Published"))
	assert.Len(t, published, 2)

	tagged := decode[[]model.SplitMetadata](t, mustRun(t, cfg, "split", "list", "logs", "--tag", "tenant:a"))
	require.Len(t, tagged, 1)
	assert.Equal(t, "s1", tagged[0].SplitID)

	mustRun(t, cfg, "split", "mark", "logs", "s1")
	marked := decode[[]model.SplitMetadata](t, mustRun(t, cfg, "split", "list", "logs", "--state", "MarkedForDeletion"))
	assert.Len(t, marked, 2)

	_, err = run(t, cfg, "split", "list", "logs", "--state", "Bogus")
	assert.Error(t, err)
}

func TestGCAndForcedDelete(t *testing.T) {
	cfg, root := writeConfig(t)
	mustRun(t, cfg, "index", "create", "logs")

	for _, id := range []string{"s1", "s2"} {
		name := "logs/" + id + ".split"
		require.NoError(t, os.MkdirAll(filepath.Join(root, "logs"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(id), 0o600))
		mustRun(t, cfg, "split", "stage", "logs", "--split-id", id, "--location", name)
	}
	mustRun(t, cfg, "split", "publish", "logs", "s1", "s2")
	mustRun(t, cfg, "split", "mark", "logs", "s1")

	dry := decode[gc.Stats](t, mustRun(t, cfg, "gc", "once", "--dry-run"))
	require.Len(t, dry.Candidates, 1)
	assert.Empty(t, dry.Deleted)
	assert.FileExists(t, filepath.Join(root, "logs", "s1.split"))

	stats := decode[gc.Stats](t, mustRun(t, cfg, "gc", "once"))
	require.Len(t, stats.Deleted, 1)
	assert.Equal(t, "s1", stats.Deleted[0].SplitID)
	assert.NoFileExists(t, filepath.Join(root, "logs", "s1.split"))

	_, err := run(t, cfg, "index", "delete", "logs")
	assert.ErrorIs(t, err, metastore.ErrIndexNotEmpty)

	files := decode[[]model.FileEntry](t, mustRun(t, cfg, "index", "delete", "logs", "--force"))
	require.Len(t, files, 1)
	assert.NoFileExists(t, filepath.Join(root, "logs", "s2.split"))

	_, err = run(t, cfg, "index", "get", "logs")
	assert.ErrorIs(t, err, metastore.ErrNotFound)
}

func TestIndexReset(t *testing.T) {
	cfg, _ := writeConfig(t)
	mustRun(t, cfg, "index", "create", "logs")
	mustRun(t, cfg, "split", "stage", "logs", "--split-id", "s1")

	files := decode[[]model.FileEntry](t, mustRun(t, cfg, "index", "reset", "logs"))
	assert.Len(t, files, 1)
	assert.Empty(t, decode[[]model.SplitMetadata](t, mustRun(t, cfg, "split", "list", "logs")))
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metastore.yaml")
	cmd := newRootCmd()
	cmd.SetArgs([]string{"config", "init", path})
	require.NoError(t, cmd.Execute())
	assert.FileExists(t, path)
}

func TestInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend:\n  type: etcd\n"), 0o600))
	_, err := run(t, path, "index", "list")
	assert.Error(t, err)
}
