package main

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/finance"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/school"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/user"
	emailsvc "github.com/Jackson-sch/sistema-escolar-pro-sub001/services/email"
	logsvc "github.com/Jackson-sch/sistema-escolar-pro-sub001/services/logger"
	inmemdb "github.com/Jackson-sch/sistema-escolar-pro-sub001/storage/database/inmem"
	testutil "github.com/Jackson-sch/sistema-escolar-pro-sub001/tests"
)

var (
	usrRepo    user.Repository
	schoolRepo school.Repository
	finRepo    finance.Repository
)

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	conf := testutil.Config()
	logger := logsvc.NewDiscardLogger(conf)
	validate, _ := testutil.NewValidator()

	// set up DB & repos
	db := inmemdb.Open()
	usrRepo = inmemdb.NewUserRepository(db)
	schoolRepo = inmemdb.NewSchoolRepository(db)
	finRepo = inmemdb.NewFinanceRepository(db)

	usrSvc := user.NewService(usrRepo, validate)
	schoolSvc := school.NewService(schoolRepo, validate, conf)
	finSvc := finance.NewService(finRepo, schoolSvc, usrSvc, emailsvc.NewConsoleServiceMock(conf, logger), validate, conf, logger)

	// start CLI
	out := new(bytes.Buffer)
	return &commandLine{
		usrRepo:   usrRepo,
		schoolSvc: schoolSvc,
		finSvc:    finSvc,
		logger:    logger,
		out:       out,
	}, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case err == nil:
		if tt.wantErr != nil || tt.wantErrStr != "" {
			t.Errorf("cli.run() error = nil, wantErr %v%s", tt.wantErr, tt.wantErrStr)
		}
	case tt.wantErr != nil:
		if errors.Cause(err) != tt.wantErr {
			t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
		}
	case tt.wantErrStr != "":
		if err.Error() != tt.wantErrStr {
			t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
		}
	default:
		t.Errorf("cli.run() unexpected error = %v", err)
	}
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte(pwd), nil
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	var ran []string
	migrateFunc = func(db *sqlx.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		ran = append(ran, strings.TrimSpace(command+" "+strings.Join(args, " ")))
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	want := []string{"up", "up-to 2", "down-to 1", "status"}
	if strings.Join(ran, ",") != strings.Join(want, ",") {
		t.Errorf("ran migrations = %v, want %v", ran, want)
	}
}

func Test_commandLine_addInstitution(t *testing.T) {
	cli, out := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no name", args: []string{"addinstitution"}, wantErr: errHelp},
		{name: "create", args: []string{"addinstitution", "-name", " Colegio  Andino ", "-currency", "usd"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	insts, err := schoolRepo.QueryInstitutions(context.Background())
	if err != nil {
		t.Fatalf("QueryInstitutions() failed, %v", err)
	}
	if len(insts) != 1 || insts[0].Name != "Colegio Andino" || insts[0].Currency != "USD" {
		t.Fatalf("institutions = %+v", insts)
	}
	if !strings.Contains(out.String(), insts[0].ID) {
		t.Errorf("output %q does not show the new institution ID", out.String())
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli, _ := setup(t)
	inst := testutil.CreateInstitution(t, schoolRepo, "Colegio San Martín")
	other := testutil.CreateInstitution(t, schoolRepo, "Otro Colegio")
	testutil.CreateUser(t, usrRepo, other.ID, "Intruso", "intruso", "intruso@test.pe", "", []string{user.RoleAdmin}, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "no institution", args: []string{"adduser", "-username", "directora"}, extra: extra{pwd: "pwd"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-institution", inst.ID, "-username", "directora"}, wantErr: errHelp},
		{name: "unknown institution", args: []string{"adduser", "-institution", "lol", "-username", "directora"}, extra: extra{pwd: "pwd"}, wantErr: school.ErrInstitutionNotFound},
		{name: "user of another institution", args: []string{"adduser", "-institution", inst.ID, "-username", "intruso"}, extra: extra{pwd: "pwd"}, wantErr: errOtherInstitution},
		{name: "create", args: []string{"adduser", "-institution", inst.ID, "-username", "Directora", "-email", "dir@test.pe"}, extra: extra{pwd: "first"}},
		{name: "update as owner", args: []string{"adduser", "-institution", inst.ID, "-username", "directora", "-name", "Ana Directora", "-owner"}, extra: extra{pwd: "second"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd := ""
		if extra, ok := tt.extra.(extra); ok {
			pwd = extra.pwd
		}
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	usr, err := usrRepo.GetUser(context.Background(), user.GetFilter{UsernameOrEmail: []string{"directora"}})
	if err != nil {
		t.Fatalf("GetUser() failed, %v", err)
	}
	if usr.InstitutionID != inst.ID || usr.Name != "Ana Directora" || usr.Email != "dir@test.pe" || !usr.IsActive {
		t.Errorf("user = %+v", usr)
	}
	if !usr.HasAnyRole(user.RoleAdminOwner) {
		t.Errorf("user roles = %v, want %v", usr.Roles, user.RoleAdminOwner)
	}
	if err = usr.CheckPassword("second"); err != nil {
		t.Error("failed to update the password")
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, _ := setup(t)
	inst := testutil.CreateInstitution(t, schoolRepo, "Colegio San Martín")
	usr := testutil.CreateUser(t, usrRepo, inst.ID, "User", "awe", "awe@test.pe", "mdr", nil, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", " AWE@test.pe"}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd := ""
		if extra, ok := tt.extra.(extra); ok {
			pwd = extra.pwd
		}
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			tt.check(t, err)
			if err != nil {
				return
			}
			refreshedUsr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
			if err != nil {
				t.Fatalf("GetUser() failed, %v", err)
			}
			if refreshedUsr.CheckPassword(pwd) != nil {
				t.Error("failed to update new password")
			}
		})
	}
}

func Test_commandLine_applyMora(t *testing.T) {
	cli, out := setup(t)
	ctx := context.Background()

	inst := testutil.CreateInstitution(t, schoolRepo, "Colegio San Martín")
	sec := testutil.CreateSection(t, schoolRepo, inst.ID, "1A")
	std := testutil.CreateStudent(t, schoolRepo, inst.ID, sec.ID, "A001", "Luis", "Quispe", nil)
	concept := testutil.CreateConcept(t, finRepo, inst.ID, "Pensión Marzo", "350", "1.50")
	entry := testutil.CreateEntry(t, finRepo, std, concept, "350", "0", core.DateOf(2024, 3, 1))

	other := testutil.CreateInstitution(t, schoolRepo, "Otro Colegio")
	otherSec := testutil.CreateSection(t, schoolRepo, other.ID, "1A")
	otherStd := testutil.CreateStudent(t, schoolRepo, other.ID, otherSec.ID, "B001", "Ana", "Torres", nil)
	otherConcept := testutil.CreateConcept(t, finRepo, other.ID, "Matrícula", "200", "2")
	otherEntry := testutil.CreateEntry(t, finRepo, otherStd, otherConcept, "200", "0", core.DateOf(2024, 3, 1))

	mora := func(institutionID, id string) string {
		entry, err := finRepo.GetEntry(ctx, institutionID, id, false)
		if err != nil {
			t.Fatalf("GetEntry() failed, %v", err)
		}
		return entry.AccruedMora.StringFixed(2)
	}

	if err := cli.run([]string{"admin", "applymora", "-date", "11/03/2024"}); err == nil {
		t.Error("cli.run() accepted a malformed date")
	}
	if err := cli.run([]string{"admin", "applymora", "-institution", inst.ID, "-date", "2024-03-11"}); err != nil {
		t.Fatalf("cli.run() unexpected error = %v", err)
	}

	if got := mora(inst.ID, entry.ID); got != "15.00" {
		t.Errorf("mora = %s, want 15.00", got)
	}
	if got := mora(other.ID, otherEntry.ID); got != "0.00" {
		t.Errorf("other institution mora = %s, want 0.00", got)
	}
	if !strings.Contains(out.String(), inst.ID+": 1 overdue, 1 updated (as of 2024-03-11)") {
		t.Errorf("output = %q", out.String())
	}

	// every institution, as of today
	if err := cli.run([]string{"admin", "applymora"}); err != nil {
		t.Fatalf("cli.run() unexpected error = %v", err)
	}
	days := core.Today().DaysSince(core.DateOf(2024, 3, 1))
	if got, want := mora(other.ID, otherEntry.ID), fmt.Sprintf("%d.00", 2*days); got != want {
		t.Errorf("other institution mora = %s, want %s", got, want)
	}
}
