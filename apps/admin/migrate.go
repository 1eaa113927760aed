package main

import (
	"github.com/pressly/goose/v3"

	"github.com/hcanning/homeroom/storage/database"
)

var gooseRunFunc = goose.Run // mockable

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errNoDatabase
	}
	arguments := make([]string, 0)
	if len(args) > 1 {
		arguments = append(arguments, args[1:]...)
	}
	return gooseRunFunc(args[0], cli.db, database.MigrationsDir, arguments...)
}

// ensureSchema brings the database schema up to date before a command touches the data.
// Nothing to do with the file store.
func (cli *commandLine) ensureSchema() error {
	if cli.db == nil {
		return nil
	}
	return gooseRunFunc("up", cli.db, database.MigrationsDir)
}
