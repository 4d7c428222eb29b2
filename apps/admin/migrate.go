package main

import (
	"github.com/pressly/goose/v3"

	appfs "github.com/trezcool/darasa/fs"
)

var gooseRunFunc = goose.Run // mockable

// migrate runs a goose command (up, down, status, ...) against the
// embedded migrations.
func (cli *commandLine) migrate(args []string) error {
	goose.SetBaseFS(appfs.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	var rest []string
	if len(args) > 1 {
		rest = args[1:]
	}
	return gooseRunFunc(args[0], cli.db.DB.DB, "migrations", rest...)
}
