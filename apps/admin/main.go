package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/chuo/assets"
	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/user"
	emailsvc "github.com/trezcool/chuo/services/email"
	logsvc "github.com/trezcool/chuo/services/logger"
	"github.com/trezcool/chuo/storage/database"
)

func main() {
	os.Exit(start())
}

func start() int {
	std := log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf, err := core.NewConfig()
	if err != nil {
		std.Printf("loading config: %v", err)
		return 1
	}
	logger := logsvc.NewRollbarLogger(std, conf)
	defer logger.Close()

	// set up DB; the api creates & migrates it
	stores, err := database.OpenStores(context.Background(), conf, logger, false)
	if err != nil {
		logger.Error(fmt.Sprintf("setting up database: %v", err), err)
		return 1
	}
	defer func() {
		if err := stores.Close(context.Background()); err != nil {
			logger.Error("Failed to close", err)
		}
	}()

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	user.LoadCommonPasswords(assets.FS, assets.CommonPasswords, logger)
	core.ParseEmailTemplates(assets.FS, assets.EmailTemplatesDir, logger)

	var mailer core.EmailService
	if conf.Debug || conf.SendgridAPIKey == "" {
		mailer = emailsvc.NewConsoleService(conf, std, logger)
	} else {
		mailer = emailsvc.NewSendgridService(conf, logger)
	}

	// start CLI
	cli := commandLine{
		conf:     conf,
		db:       stores.SQL,
		usrRepo:  stores.Users,
		usrSvc:   user.NewService(stores.Users),
		validate: validate,
		records:  stores.Records,
		courses:  stores.Courses,
		mailer:   mailer,
		logger:   logger,
		out:      os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			std.Printf("\nerror: %s\n", err)
		}
		return 1
	}
	return 0
}
