package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/finance"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/school"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/user"
	emailsvc "github.com/Jackson-sch/sistema-escolar-pro-sub001/services/email"
	logsvc "github.com/Jackson-sch/sistema-escolar-pro-sub001/services/logger"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/storage/database"
	sqlxrepos "github.com/Jackson-sch/sistema-escolar-pro-sub001/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	logger.Enable(!conf.Debug)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	validate := validator.New()
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	finance.InitValidators(validate, translator)

	// set up services
	usrRepo := sqlxrepos.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo, validate)
	schoolSvc := school.NewService(sqlxrepos.NewSchoolRepository(db), validate, conf)
	mailSvc := emailsvc.NewConsoleService(conf, logger)
	finSvc := finance.NewService(sqlxrepos.NewFinanceRepository(db), schoolSvc, usrSvc, mailSvc, validate, conf, logger)

	// start CLI
	cli := commandLine{
		db:        db,
		usrRepo:   usrRepo,
		schoolSvc: schoolSvc,
		finSvc:    finSvc,
		logger:    logger,
		out:       os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("\nerror: %s\n", err), err)
		}
		os.Exit(1)
	}
}
