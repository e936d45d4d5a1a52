package main

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/trezcool/flowboard/core"
)

var errPasswordMismatch = errors.New("passwords do not match")

func (cli *commandLine) newHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hashpassword",
		Short: "Hash the administrator password; the password is prompted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pwd, err := cli.promptPassword("Enter password:")
			if err != nil {
				return err
			}
			if len(pwd) == 0 {
				return cli.help(cmd, args)
			}
			confirm, err := cli.promptPassword("Confirm password:")
			if err != nil {
				return err
			}
			if confirm != pwd {
				return errPasswordMismatch
			}

			hash, err := core.HashPassword(pwd)
			if err != nil {
				return err
			}
			fmt.Fprintln(cli.out, hash)
			fmt.Fprintf(cli.out, "Set it as %s_AUTH_ADMINPASSWORDHASH.\n", cli.conf.Env)
			return nil
		},
	}
}

func (cli *commandLine) promptPassword(prompt string) (string, error) {
	fmt.Fprint(cli.out, prompt)
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
