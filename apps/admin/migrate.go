package main

import (
	"errors"

	"github.com/pressly/goose/v3"

	"github.com/trezcool/chuo/assets"
	"github.com/trezcool/chuo/core"
)

var (
	gooseRunFunc = goose.Run // mockable; migrations are read from assets.FS

	errNoSQLDatabase = errors.New("migrations only apply to the " + core.EnginePostgres + " engine")
)

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errNoSQLDatabase
	}
	arguments := make([]string, 0)
	if len(args) > 1 {
		arguments = append(arguments, args[1:]...)
	}
	return gooseRunFunc(args[0], cli.db, assets.MigrationsDir, arguments...)
}
