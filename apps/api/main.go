package main

import (
	"context"
	"database/sql"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	echoapi "github.com/trezcool/ngazi/apps/api/echo"
	"github.com/trezcool/ngazi/core"
	"github.com/trezcool/ngazi/core/progression"
	"github.com/trezcool/ngazi/core/queue"
	"github.com/trezcool/ngazi/core/student"
	appfs "github.com/trezcool/ngazi/fs"
	cachesvc "github.com/trezcool/ngazi/services/cache"
	emailsvc "github.com/trezcool/ngazi/services/email"
	logsvc "github.com/trezcool/ngazi/services/logger"
	"github.com/trezcool/ngazi/storage/database"
	pgrepos "github.com/trezcool/ngazi/storage/database/pg"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("failed to close DB", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	var cacheSvc core.CacheService
	if conf.Debug {
		cacheSvc = cachesvc.NewInMemService()
	} else {
		cacheSvc = cachesvc.NewRedisService(conf)
	}

	jobQueue := queue.New(conf, logger, mailSvc)
	stdSvc := student.NewService(pgrepos.NewStudentRepository(db))
	progSvc := progression.NewService(pgrepos.NewRecordRepository(db), stdSvc, jobQueue, logger, conf)

	queue.RegisterMaintenanceHandlers(jobQueue, queue.MaintenanceDeps{
		Conf:        conf,
		Logger:      logger,
		Progression: progSvc,
		Students:    stdSvc,
		Cache:       cacheSvc,
	})
	scheduler := queue.NewScheduler(jobQueue, logger, conf)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	progression.InitValidators(validate, translator)
	queue.InitValidators(validate, translator)

	core.ParseEmailTemplates(appfs.FS, logger, conf)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err = http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Job Scheduler

	scheduler.Start()
	defer scheduler.Stop()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:           conf,
			Logger:         logger,
			ProgressionSvc: progSvc,
			StudentSvc:     stdSvc,
			Queue:          jobQueue,
			Cache:          cacheSvc,
			Validate:       validate,
			Translator:     translator,
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

func setUpDB(conf *core.Config) (*sql.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
