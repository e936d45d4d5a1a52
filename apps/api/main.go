package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/trezcool/flowboard/apps/api/echo"
	mcpapi "github.com/trezcool/flowboard/apps/api/mcp"
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
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	local, err := logsvc.NewZapLogger(conf.Debug)
	if err != nil {
		log.Fatalf("setting up logger: %v", err)
	}
	defer func() { _ = local.Sync() }()

	logger := logsvc.NewRollbarLogger(local, conf)
	logger.Enable(!conf.Debug)
	defer logger.Close()

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Fatal("Failed to close", err)
		}
	}()

	// set up services
	registry := workflow.DefaultRegistry()
	if err = registry.LoadConfig(conf.Actions); err != nil {
		logger.Fatal(fmt.Sprintf("loading actions: %v", err), err)
	}
	validate, translator := core.NewValidator()

	wfSvc := workflow.NewService(sqlxrepos.NewWorkflowRepository(db), workflow.Deps{
		Validate: validate,
		Registry: registry,
		Counter:  sqlxrepos.NewTableCounter(db),
		Mailer:   emailsvc.NewService(conf, logger),
		Logger:   logger,
		AppName:  conf.AppName,
	})

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, false, logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Analytics Refresher (disabled unless analytics.refreshInterval > 0)

	ctx, stopRefresher := context.WithCancel(context.Background())
	defer stopRefresher()
	go scheduler.NewAnalyticsRefresher(wfSvc, conf.Analytics, logger).Run(ctx)

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:        conf,
			Logger:      logger,
			WorkflowSvc: wfSvc,
			Validate:    validate,
			Translator:  translator,
			MCP:         mcpapi.NewServer(conf, wfSvc, logger).Handler(),
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
		stopRefresher()

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	ctx := context.Background()
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	if err = database.Ping(ctx, db); err != nil {
		return nil, err
	}

	if err = database.Migrate(db, "up"); err != nil {
		return nil, err
	}
	return db, nil
}
