package dig_container

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/Jackson-sch/sistema-escolar-pro-sub001/apps/api/echo"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/finance"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/school"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/user"
	emailsvc "github.com/Jackson-sch/sistema-escolar-pro-sub001/services/email"
	logsvc "github.com/Jackson-sch/sistema-escolar-pro-sub001/services/logger"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/services/scheduler"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/storage/database"
	sqlxrepos "github.com/Jackson-sch/sistema-escolar-pro-sub001/storage/database/sqlx"
)

// MoraJobTimeout bounds one run of the scheduled mora accrual.
const MoraJobTimeout = 10 * time.Minute

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type serverParams struct {
	dig.In

	Conf       *core.Config
	Logger     core.Logger
	UserSvc    *user.Service
	SchoolSvc  *school.Service
	FinanceSvc *finance.Service
	MailSvc    core.EmailService
	Validate   *validator.Validate
	Translator ut.Translator
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, core.DB) {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db, "up"); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// the finance service only needs lookups from its siblings
func studentFinder(svc *school.Service) finance.StudentFinder { return svc }
func userFinder(svc *user.Service) finance.UserFinder         { return svc }

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		UserSvc:    p.UserSvc,
		SchoolSvc:  p.SchoolSvc,
		FinanceSvc: p.FinanceSvc,
		MailSvc:    p.MailSvc,
		Validate:   p.Validate,
		Translator: p.Translator,
	})
}

// newScheduler schedules the mora accrual when the config sets a schedule.
func newScheduler(conf *core.Config, logger core.Logger, schoolSvc *school.Service, finSvc *finance.Service) (*scheduler.Scheduler, error) {
	sched := scheduler.New(logger)
	if conf.Finance.MoraSchedule == "" {
		return sched, nil
	}
	if _, err := sched.AddMoraJob(conf.Finance.MoraSchedule, schoolSvc, finSvc, MoraJobTimeout); err != nil {
		return nil, err
	}
	return sched, nil
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newEmailService))
	must(c.Provide(sqlxrepos.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(sqlxrepos.NewSchoolRepository, dig.As(new(school.Repository))))
	must(c.Provide(sqlxrepos.NewFinanceRepository, dig.As(new(finance.Repository))))
	must(c.Provide(newTranslator))
	must(c.Provide(validator.New))
	must(c.Provide(user.NewService))
	must(c.Provide(school.NewService))
	must(c.Provide(studentFinder))
	must(c.Provide(userFinder))
	must(c.Provide(finance.NewService))
	must(c.Provide(newServer))
	must(c.Provide(newScheduler))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
