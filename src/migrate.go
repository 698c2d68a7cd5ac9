package main

import (
	"fmt"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/pkg/errors"
)

func init() {
	parser.AddCommand("migrate",
		"Migrate database to defined migrations version",
		"Migrate database to defined migrations version.",
		&MigrateCommand{})
}

// MigrateCommand struct
type MigrateCommand struct {
	Version string `short:"v" long:"version" default:"up" description:"Migrate to defined migrations version. Allowed: up, down, next, prev and integer value."`
	Path    string `short:"p" long:"path" default:"migrations" description:"Path to migrations files."`
}

// Execute command
func (x *MigrateCommand) Execute(args []string) error {
	config := LoadConfig(options.Config)
	setupLogger(config.LogLevel)

	err := Migrate(config.Database.Connection, x.Version, x.Path)
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("No changes detected. Skipping migration.")
		err = nil
	}

	return err
}

// Migrate moves the schema to version: up, down, next, prev or a number
func Migrate(database string, version string, path string) error {
	m, err := migrate.New("file://"+path, database)
	if err != nil {
		return errors.Wrapf(err, "migrations path %s", path)
	}
	defer m.Close()

	currentVersion, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return errors.Wrap(err, "current version")
	}

	switch version {
	case "up":
		logger.Infof("Migrating from %d to last", currentVersion)
		return m.Up()
	case "down":
		logger.Infof("Migrating from %d to 0", currentVersion)
		return m.Down()
	case "next":
		logger.Infof("Migrating from %d to next", currentVersion)
		return m.Steps(1)
	case "prev":
		logger.Infof("Migrating from %d to previous", currentVersion)
		return m.Steps(-1)
	}

	ver, err := strconv.ParseUint(version, 10, 32)
	if err != nil {
		return errors.Wrapf(err, "invalid migration version %s", version)
	}

	if ver == 0 {
		return fmt.Errorf("migrations not found in path %s", path)
	}

	logger.Infof("Migrating from %d to %d", currentVersion, ver)

	return m.Migrate(uint(ver))
}
