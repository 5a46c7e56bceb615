package database

import (
	"os"
	"path/filepath"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
)

// MigrateOptions selects what to apply. TargetVersion 0 means latest.
type MigrateOptions struct {
	FolderPath    string
	TargetVersion uint
}

// migrateLogger adapts ectologger to golang-migrate's Logger interface.
type migrateLogger struct {
	ectologger.Logger
}

func (l migrateLogger) Verbose() bool {
	return false
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.Debugf(format, v...)
}

// MigrateUp applies the warehouse schema migrations through the given driver.
// A migration failure that leaves the schema dirty is surfaced with the stuck
// version so the operator can force past it; nothing is rolled back
// automatically.
func MigrateUp(driver database.Driver, opts MigrateOptions, logger ectologger.Logger) error {
	folder, err := resolveMigrationsDir(opts.FolderPath)
	if err != nil {
		return clovererrors.Newf(clovererrors.KindLoad, "migrations folder %s not found", opts.FolderPath).WithCause(err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+folder, "postgres", driver)
	if err != nil {
		return clovererrors.New(clovererrors.KindLoad, "open migration source").WithCause(err)
	}
	m.Log = migrateLogger{Logger: logger}

	var runErr error
	if opts.TargetVersion != 0 {
		runErr = m.Migrate(opts.TargetVersion)
	} else {
		runErr = m.Up()
	}

	if runErr == migrate.ErrNoChange {
		logger.Info("Warehouse schema already up to date")
		return nil
	}
	if runErr != nil {
		if version, dirty, vErr := m.Version(); vErr == nil && dirty {
			return clovererrors.Newf(clovererrors.KindLoad, "migration left schema dirty at version %d", version).WithCause(runErr)
		}
		return clovererrors.New(clovererrors.KindLoad, "apply schema migrations").WithCause(runErr)
	}

	version, _, _ := m.Version()
	logger.Infof("Warehouse schema migrated to version %d", version)
	return nil
}

// resolveMigrationsDir accepts the folder as given or relative to the working
// directory, whichever exists.
func resolveMigrationsDir(path string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	wd, wdErr := os.Getwd()
	if wdErr != nil {
		return "", wdErr
	}

	joined := filepath.Join(wd, path)
	if _, err := os.Stat(joined); err != nil {
		return "", err
	}
	return joined, nil
}
