package finance_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/finance"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/school"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/user"
	emailsvc "github.com/Jackson-sch/sistema-escolar-pro-sub001/services/email"
	logsvc "github.com/Jackson-sch/sistema-escolar-pro-sub001/services/logger"
	inmemdb "github.com/Jackson-sch/sistema-escolar-pro-sub001/storage/database/inmem"
	testutil "github.com/Jackson-sch/sistema-escolar-pro-sub001/tests"
)

type fixture struct {
	ctx        context.Context
	svc        *finance.Service
	repo       finance.Repository
	schoolRepo school.Repository
	usrRepo    user.Repository
	mailSvc    *emailsvc.ConsoleServiceMock

	inst      school.Institution
	sec       school.Section
	otherSec  school.Section
	treasurer user.User
	parent    user.User
	std       school.Student // child of parent, in sec
	otherStd  school.Student // no guardian, in otherSec
	concept   finance.Concept
}

func setup(t *testing.T) *fixture {
	t.Helper()
	conf := testutil.Config()
	logger := logsvc.NewDiscardLogger(conf)
	core.ParseEmailTemplates(conf, logger)
	validate, _ := testutil.NewValidator()

	db := inmemdb.Open()
	f := &fixture{
		ctx:        context.Background(),
		repo:       inmemdb.NewFinanceRepository(db),
		schoolRepo: inmemdb.NewSchoolRepository(db),
		usrRepo:    inmemdb.NewUserRepository(db),
		mailSvc:    emailsvc.NewConsoleServiceMock(conf, logger),
	}
	f.svc = finance.NewService(
		f.repo,
		school.NewService(f.schoolRepo, validate, conf),
		user.NewService(f.usrRepo, validate),
		f.mailSvc,
		validate,
		conf,
		logger,
	)

	f.inst = testutil.CreateInstitution(t, f.schoolRepo, "Colegio San Martín")
	f.sec = testutil.CreateSection(t, f.schoolRepo, f.inst.ID, "1A")
	f.otherSec = testutil.CreateSection(t, f.schoolRepo, f.inst.ID, "1B")
	f.treasurer = testutil.CreateUser(t, f.usrRepo, f.inst.ID, "Tesorera", "tesorera", "tesoreria@test.pe", "", []string{user.RoleAdminTreasurer}, true)
	f.parent = testutil.CreateUser(t, f.usrRepo, f.inst.ID, "Rosa Quispe", "rquispe", "rosa@test.pe", "", []string{user.RoleParent}, true)
	f.std = testutil.CreateStudent(t, f.schoolRepo, f.inst.ID, f.sec.ID, "A001", "Luis", "Quispe", &f.parent)
	f.otherStd = testutil.CreateStudent(t, f.schoolRepo, f.inst.ID, f.otherSec.ID, "B001", "Ana", "Torres", nil)
	f.concept = testutil.CreateConcept(t, f.repo, f.inst.ID, "Pensión Marzo", "350", "1.50")
	return f
}

func (f *fixture) entry(t *testing.T, id string) finance.ScheduleEntry {
	t.Helper()
	e, err := f.repo.GetEntry(f.ctx, f.inst.ID, id, false)
	if err != nil {
		t.Fatalf("GetEntry() failed: %v", err)
	}
	return e
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Errorf("%s = %s; want %s", name, got, want)
	}
}
