package main

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trezcool/flowboard/core"
	"github.com/trezcool/flowboard/core/workflow"
	appfs "github.com/trezcool/flowboard/fs"
	emailsvc "github.com/trezcool/flowboard/services/email"
	logsvc "github.com/trezcool/flowboard/services/logger"
	"github.com/trezcool/flowboard/services/scheduler"
	sqlxrepos "github.com/trezcool/flowboard/storage/database/sqlx"
	testutil "github.com/trezcool/flowboard/tests"
)

type testCLI struct {
	*commandLine
	repo   workflow.Repository
	mailer *emailsvc.ConsoleService
	out    *bytes.Buffer
}

func setup(t *testing.T) *testCLI {
	db := testutil.PrepareDB(t)
	repo := sqlxrepos.NewWorkflowRepository(db)
	logger := logsvc.WrapZap(zap.NewNop())

	conf := &core.Config{
		AppName: "Flowboard",
		Env:     "TEST",
		Mail:    core.MailConfig{DefaultFromEmail: mail.Address{Name: "Flowboard", Address: "noreply@flowboard.test"}},
		Analytics: core.AnalyticsConfig{
			LockFile: filepath.Join(t.TempDir(), "analytics.lock"),
		},
	}
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, true, logger)
	mailer := emailsvc.NewConsoleServiceMock(conf, logger)

	validate, translator := core.NewValidator()
	svc := workflow.NewService(repo, workflow.Deps{
		Validate: validate,
		Counter: sqlxrepos.NewTableCounter(db),
		Mailer:  mailer,
		Logger:  logger,
		Clock:   testutil.Clock,
		AppName: conf.AppName,
	})

	out := new(bytes.Buffer)
	return &testCLI{
		commandLine: &commandLine{
			conf:       conf,
			db:         db,
			svc:        svc,
			refresher:  scheduler.NewAnalyticsRefresher(svc, conf.Analytics, logger),
			translator: translator,
			out:        out,
		},
		repo:   repo,
		mailer: mailer,
		out:    out,
	}
}

// exec runs the CLI with args (without program name) and returns what it printed.
func (cli *testCLI) exec(args ...string) (string, error) {
	cli.out.Reset()
	err := cli.run(append([]string{"admin"}, args...))
	return cli.out.String(), err
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantOut    string // substring of the output
}

func runCLITests(t *testing.T, cli *testCLI, tests []cliTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := cli.exec(tt.args...)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				if assert.Error(t, err) {
					assert.Equal(t, tt.wantErrStr, err.Error())
				}
			default:
				assert.NoError(t, err)
			}
			if tt.wantOut != "" {
				assert.Contains(t, out, tt.wantOut)
			}
		})
	}
}

func Test_commandLine_run(t *testing.T) {
	cli := setup(t)

	runCLITests(t, cli, []cliTest{
		{name: "no command", wantErr: errHelp, wantOut: "Flowboard administration"},
		{name: "unknown command", args: []string{"lol"}, wantErrStr: `unknown command "lol" for "admin"`},
		{name: "workflows without subcommand", args: []string{"workflows"}, wantErr: errHelp, wantOut: "student-lifecycle"},
		{name: "analytics without subcommand", args: []string{"analytics"}, wantErr: errHelp, wantOut: "digest"},
	})
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	gooseRunFunc = func(db *sqlx.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	runCLITests(t, cli, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "course", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	})
}

func Test_commandLine_hashPassword(t *testing.T) {
	cli := setup(t)

	tests := []struct {
		name    string
		inputs  []string
		wantErr error
	}{
		{name: "no password", inputs: []string{""}, wantErr: errHelp},
		{name: "mismatch", inputs: []string{"s3cret", "secret"}, wantErr: errPasswordMismatch},
		{name: "hashed", inputs: []string{"s3cret", "s3cret"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inputs := tt.inputs
			readPasswordFunc = func(fd int) ([]byte, error) {
				if len(inputs) == 0 {
					return nil, nil
				}
				pwd := inputs[0]
				inputs = inputs[1:]
				return []byte(pwd), nil
			}

			out, err := cli.exec("hashpassword")
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)

			lines := strings.Split(strings.TrimSpace(out), "\n")
			require.Len(t, lines, 4) // two prompts, the hash and the hint
			hash := strings.TrimSpace(lines[2])
			auth := core.AuthConfig{AdminUsername: "admin", AdminPasswordHash: hash}
			assert.NoError(t, core.CheckAdminCredentials(auth, "admin", "s3cret"))
			assert.Equal(t, "Set it as TEST_AUTH_ADMINPASSWORDHASH.", lines[3])
		})
	}
}

func Test_commandLine_workflows(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	out, err := cli.exec("workflows", "create", "Library", "--sequence", "30", "--color", "#2ecc71")
	require.NoError(t, err)
	assert.Contains(t, out, `Workflow "Library" created: `)

	wfs, err := cli.svc.QueryWorkflows(ctx, workflow.QueryFilter{Search: "library"})
	require.NoError(t, err)
	require.Len(t, wfs, 1)
	lib := wfs[0]
	assert.Equal(t, 30, lib.Sequence)
	assert.Equal(t, "#2ecc71", lib.Color)

	testutil.CreateWorkflow(t, cli.repo, "Archived", 40, false)

	runCLITests(t, cli, []cliTest{
		{name: "create: invalid color", args: []string{"workflows", "create", "Fees", "--color", "blue"}, wantErrStr: "color must be a hex color such as #3498db"},
		{name: "create: no name", args: []string{"workflows", "create"}, wantErrStr: "accepts 1 arg(s), received 0"},
		{name: "setup: unknown workflow", args: []string{"workflows", "setup", "missing"}, wantErr: workflow.ErrWorkflowNotFound},
		{name: "setup: invalid type", args: []string{"workflows", "setup", lib.ID, "--type", "wizard"}, wantErrStr: "setup_type must be one of [basic advanced custom]"},
	})

	_, err = cli.exec("workflows", "setup", lib.ID, "--file", filepath.Join(t.TempDir(), "nope.json"))
	if assert.Error(t, err) {
		assert.True(t, strings.HasPrefix(err.Error(), "reading setup file: "))
	}

	out, err = cli.exec("workflows", "setup", lib.ID)
	require.NoError(t, err)
	assert.Equal(t, "Library: 3 stages, 2 transitions, 3 analytics records\n", out)

	out, err = cli.exec("workflows", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Library")
	assert.Contains(t, out, "Archived")
	assert.Contains(t, out, "0.00%")

	out, err = cli.exec("workflows", "list", "--active")
	require.NoError(t, err)
	assert.Contains(t, out, "Library")
	assert.NotContains(t, out, "Archived")

	out, err = cli.exec("stages", "list", lib.ID)
	require.NoError(t, err)
	for _, name := range []string{"Start", "Process", "Complete", workflow.DefaultStageAction} {
		assert.Contains(t, out, name)
	}

	_, err = cli.exec("stages", "list", "missing")
	assert.Equal(t, workflow.ErrWorkflowNotFound, err)

	out, err = cli.exec("workflows", "student-lifecycle")
	require.NoError(t, err)
	slc, err := cli.svc.StudentLifecycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, slc.ID+"\n", out)
}

func Test_commandLine_analytics(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	wf := testutil.CreateWorkflow(t, cli.repo, "Student Lifecycle", 10, true)
	inquiry := testutil.CreateStage(t, cli.repo, wf, "Inquiry", 10, "")
	testutil.CreateStage(t, cli.repo, wf, "Admission", 20, "")
	testutil.CreateAnalytics(t, cli.repo, inquiry, 6, 2, testutil.Now)

	out, err := cli.exec("analytics", "list", wf.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Inquiry")
	assert.Contains(t, out, "improving")

	out, err = cli.exec("analytics", "refresh", wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "2 analytics records refreshed\n", out)

	records, err := cli.svc.QueryAnalytics(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.True(t, testutil.Now.Equal(rec.LastUpdated))
	}

	out, err = cli.exec("analytics", "refresh")
	require.NoError(t, err)
	assert.Equal(t, "2 analytics records refreshed\n", out)

	_, err = cli.exec("analytics", "refresh", "missing")
	assert.Equal(t, workflow.ErrWorkflowNotFound, err)

	_, err = cli.exec("analytics", "digest")
	assert.EqualError(t, err, "no recipients: set mail.digestRecipients or use --to")

	_, err = cli.exec("analytics", "digest", "--to", "not an address")
	assert.Error(t, err)

	out, err = cli.exec("analytics", "digest", "--to", "Registrar <registrar@example.com>, dean@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Digest sent to 2 recipient(s)\n", out)

	sent := cli.mailer.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "registrar@example.com", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "Student Lifecycle: 2 stages")
}
