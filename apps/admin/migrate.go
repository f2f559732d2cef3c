package main

import (
	"errors"

	"github.com/trezcool/proofmate/storage/database"
)

var (
	gooseRunFunc = database.RunMigrations // mockable

	errNoDatabase = errors.New("migrations need the postgres database engine")
)

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errNoDatabase
	}
	return gooseRunFunc(args[0], cli.db, args[1:]...)
}
