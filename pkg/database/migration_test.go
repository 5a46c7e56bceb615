package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func TestResolveMigrationsDir(t *testing.T) {
	t.Run("absolute path that exists", func(t *testing.T) {
		dir := t.TempDir()

		resolved, err := resolveMigrationsDir(dir)
		require.NoError(t, err)
		assert.Equal(t, dir, resolved)
	})

	t.Run("relative to working directory", func(t *testing.T) {
		parent := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(parent, "db"), 0o755))

		wd, err := os.Getwd()
		require.NoError(t, err)
		require.NoError(t, os.Chdir(parent))
		t.Cleanup(func() { _ = os.Chdir(wd) })

		resolved, err := resolveMigrationsDir("db")
		require.NoError(t, err)
		assert.Equal(t, "db", resolved)
	})

	t.Run("missing everywhere", func(t *testing.T) {
		_, err := resolveMigrationsDir(filepath.Join(t.TempDir(), "nope"))
		require.Error(t, err)
	})
}

func TestMigrateUpMissingFolder(t *testing.T) {
	err := MigrateUp(nil, MigrateOptions{
		FolderPath: filepath.Join(t.TempDir(), "does-not-exist"),
	}, getTestLogger())

	require.Error(t, err)
	assert.Equal(t, clovererrors.KindLoad, clovererrors.KindOf(err))
	assert.False(t, clovererrors.IsTransient(err))
	assert.Contains(t, err.Error(), "does-not-exist")
}

func TestMigrateLoggerAdapter(t *testing.T) {
	l := migrateLogger{Logger: getTestLogger()}

	assert.False(t, l.Verbose())
	// Printf routes through the structured logger without panicking
	l.Printf("applied %d/%s", 1, "create_warehouse_schema")
}
