package main

import (
	"fmt"
	"log"
	"os"

	"github.com/trezcool/flowboard/core"
	"github.com/trezcool/flowboard/core/workflow"
	appfs "github.com/trezcool/flowboard/fs"
	emailsvc "github.com/trezcool/flowboard/services/email"
	logsvc "github.com/trezcool/flowboard/services/logger"
	"github.com/trezcool/flowboard/services/scheduler"
	"github.com/trezcool/flowboard/storage/database"
	sqlxrepos "github.com/trezcool/flowboard/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	logger, err := logsvc.NewZapLogger(conf.Debug)
	if err != nil {
		log.Fatalf("setting up logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// set up DB
	db, err := database.Open(conf)
	errAndDie(logger, err)
	defer db.Close()

	registry := workflow.DefaultRegistry()
	errAndDie(logger, registry.LoadConfig(conf.Actions))
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, false, logger)

	validate, translator := core.NewValidator()
	svc := workflow.NewService(sqlxrepos.NewWorkflowRepository(db), workflow.Deps{
		Validate: validate,
		Registry: registry,
		Counter:  sqlxrepos.NewTableCounter(db),
		Mailer:   emailsvc.NewSyncService(conf, logger),
		Logger:   logger,
		AppName:  conf.AppName,
	})

	// start CLI
	cli := commandLine{
		conf:       conf,
		db:         db,
		svc:        svc,
		refresher:  scheduler.NewAnalyticsRefresher(svc, conf.Analytics, logger),
		translator: translator,
		out:        os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(logger core.Logger, err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
