package main

import (
	"github.com/spf13/cobra"

	"github.com/trezcool/flowboard/storage/database"
)

var gooseRunFunc = database.Migrate // mockable

func (cli *commandLine) newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run a goose migration command (up, up-by-one, up-to, down, down-to, redo, reset, status, version)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cli.help(cmd, args)
			}
			return gooseRunFunc(cli.db, args[0], args[1:]...)
		},
	}
}
