package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMigrator struct {
	calls   []string
	steps   int
	forced  int
	version uint
	dirty   bool
	err     error
}

func (f *fakeMigrator) Up() error { f.calls = append(f.calls, "up"); return f.err }

func (f *fakeMigrator) Down(steps int) error {
	f.calls = append(f.calls, "down")
	f.steps = steps
	return f.err
}

func (f *fakeMigrator) Version() (uint, bool, error) { return f.version, f.dirty, f.err }

func (f *fakeMigrator) Force(version int) error {
	f.calls = append(f.calls, "force")
	f.forced = version
	return f.err
}

func migrationsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{
		"000001_create_migration_runs", "000002_create_external_id_mappings", "000003_create_crm_tables",
	} {
		for _, suffix := range []string{".up.sql", ".down.sql"} {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name+suffix), []byte("SELECT 1;"), 0o600))
		}
	}
	return dir
}

func opener(m *fakeMigrator, opened *bool) func() (migrator, func(), error) {
	return func() (migrator, func(), error) {
		*opened = true
		return m, func() {}, nil
	}
}

func TestRun_Commands(t *testing.T) {
	dir := migrationsDir(t)

	t.Run("up", func(t *testing.T) {
		m, opened := &fakeMigrator{}, false
		require.NoError(t, run([]string{"up"}, dir, &bytes.Buffer{}, opener(m, &opened)))
		assert.Equal(t, []string{"up"}, m.calls)
	})

	t.Run("down all", func(t *testing.T) {
		m, opened := &fakeMigrator{}, false
		require.NoError(t, run([]string{"down", "all"}, dir, &bytes.Buffer{}, opener(m, &opened)))
		assert.Zero(t, m.steps)
	})

	t.Run("force", func(t *testing.T) {
		m, opened := &fakeMigrator{}, false
		require.NoError(t, run([]string{"force", "2"}, dir, &bytes.Buffer{}, opener(m, &opened)))
		assert.Equal(t, 2, m.forced)
	})

	t.Run("list reads files without a database", func(t *testing.T) {
		var out bytes.Buffer
		opened := false
		require.NoError(t, run([]string{"list"}, dir, &out, opener(&fakeMigrator{}, &opened)))
		assert.False(t, opened)
		assert.Contains(t, out.String(), "000002_create_external_id_mappings")
	})

	t.Run("status marks applied and dirty versions", func(t *testing.T) {
		var out bytes.Buffer
		opened := false
		m := &fakeMigrator{version: 2, dirty: true}
		require.NoError(t, run([]string{"status"}, dir, &out, opener(m, &opened)))
		assert.Equal(t, "[x] 000001_create_migration_runs\n"+
			"[!] 000002_create_external_id_mappings\n"+
			"[ ] 000003_create_crm_tables\n", out.String())
	})

	t.Run("migrator errors propagate", func(t *testing.T) {
		opened := false
		m := &fakeMigrator{err: errors.New("dirty database")}
		assert.Error(t, run([]string{"up"}, dir, &bytes.Buffer{}, opener(m, &opened)))
	})
}

func TestRun_UsageErrors(t *testing.T) {
	dir := migrationsDir(t)
	for _, args := range [][]string{
		{"drop"},
		{"force"},
		{"force", "latest"},
		{"down", "0"},
		{"down", "-3"},
	} {
		opened := false
		err := run(args, dir, &bytes.Buffer{}, opener(&fakeMigrator{}, &opened))
		assert.ErrorIs(t, err, errUsage, "%v", args)
	}
}

func TestParseDownSteps(t *testing.T) {
	steps, err := parseDownSteps(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, steps)

	steps, err = parseDownSteps([]string{"3"})
	require.NoError(t, err)
	assert.Equal(t, 3, steps)
}
