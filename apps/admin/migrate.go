package main

import (
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/storage/database"
)

var migrateFunc = database.Migrate // mockable

func (cli *commandLine) migrate(args []string) error {
	return migrateFunc(cli.db, args[0], args[1:]...)
}
