package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/validator/v10"

	echoapi "github.com/trezcool/chuo/apps/api/echo"
	"github.com/trezcool/chuo/assets"
	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/achievement"
	"github.com/trezcool/chuo/core/attendance"
	"github.com/trezcool/chuo/core/draft"
	"github.com/trezcool/chuo/core/examresult"
	"github.com/trezcool/chuo/core/grade"
	"github.com/trezcool/chuo/core/student"
	"github.com/trezcool/chuo/core/user"
	financesvc "github.com/trezcool/chuo/services/finance"
	logsvc "github.com/trezcool/chuo/services/logger"
	"github.com/trezcool/chuo/storage/database"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf, err := core.NewConfig()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	defer logger.Close()

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up DB
	stores, err := database.OpenStores(context.Background(), conf, dbLogger, true /* migrate */)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = stores.Close(context.Background()); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	user.LoadCommonPasswords(assets.FS, assets.CommonPasswords, logger)

	// set up services
	loc := conf.Location()
	usrSvc := user.NewService(stores.Users)
	attSvc := attendance.NewService(stores.Records, usrSvc, validate, loc)
	resultSvc := examresult.NewService(stores.Records, validate)
	achSvc := achievement.NewService(stores.Records, usrSvc, validate)
	gradeSvc := grade.NewService(stores.Records, usrSvc, validate)

	var payments student.PaymentStatusSource
	if conf.FinanceBaseURL != "" {
		payments = financesvc.NewClient(conf.FinanceBaseURL, conf.FinanceAPIKey, nil)
	} else {
		logger.Warn("finance_base_url is not set: payment status will not be available")
	}
	studentSvc := student.NewService(attSvc, resultSvc, achSvc, gradeSvc, payments, logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("engine").Set(conf.Database.Engine)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugAddress, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:           conf,
			Logger:         logger,
			Validate:       validate,
			Translator:     translator,
			UserSvc:        usrSvc,
			DraftSvc:       draft.NewService(stores.Records, validate),
			ResultSvc:      resultSvc,
			AttendanceSvc:  attSvc,
			AchievementSvc: achSvc,
			GradeSvc:       gradeSvc,
			StudentSvc:     studentSvc,
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
