package main

import (
	"errors"
	"io"
	"sort"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/flowboard/core"
	"github.com/trezcool/flowboard/core/workflow"
	"github.com/trezcool/flowboard/services/scheduler"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf       *core.Config
	db         *sqlx.DB
	svc        *workflow.Service
	refresher  *scheduler.AnalyticsRefresher
	translator ut.Translator // translates the validation errors of svc
	out        io.Writer
}

// run executes the command named by args[1:]; args[0] is the program name.
func (cli *commandLine) run(args []string) error {
	root := cli.newRootCommand()
	root.SetArgs(args[1:])
	err := root.Execute()
	if verrs, ok := err.(validator.ValidationErrors); ok && cli.translator != nil {
		return translateErrors(verrs, cli.translator)
	}
	return err
}

func translateErrors(verrs validator.ValidationErrors, translator ut.Translator) error {
	msgs := make([]string, 0, len(verrs))
	for _, msg := range verrs.Translate(translator) {
		msgs = append(msgs, msg)
	}
	sort.Strings(msgs)
	return errors.New(strings.Join(msgs, "; "))
}

func (cli *commandLine) newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Flowboard administration",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          cli.help,
	}
	root.SetOut(cli.out)
	root.SetErr(cli.out)

	root.AddCommand(cli.newMigrateCommand())
	root.AddCommand(cli.newHashPasswordCommand())
	root.AddCommand(cli.newWorkflowsCommand())
	root.AddCommand(cli.newStagesCommand())
	root.AddCommand(cli.newAnalyticsCommand())
	return root
}

// help prints the usage of cmd and makes the program exit with a non-zero status.
func (cli *commandLine) help(cmd *cobra.Command, _ []string) error {
	_ = cmd.Help()
	return errHelp
}
