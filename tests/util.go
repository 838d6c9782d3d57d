package testutil

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/finance"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/school"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/user"
)

var (
	conf     *core.Config
	confOnce sync.Once
)

// Config returns the TEST configuration.
func Config() *core.Config {
	confOnce.Do(func() {
		_ = os.Setenv("ENV", "TEST")
		conf = core.NewConfig()
		conf.FrontendBaseURL = "http://escolar.test"
	})
	return conf
}

func NewTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// NewValidator returns a validator with every app validator registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	finance.InitValidators(validate, translator)
	return validate, translator
}

func CreateInstitution(t *testing.T, repo school.Repository, name string) school.Institution {
	t.Helper()
	inst, err := repo.CreateInstitution(context.Background(), school.Institution{
		Name:      name,
		Currency:  "PEN",
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateInstitution() failed: %v", err)
	}
	return inst
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	institutionID, name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		InstitutionID: institutionID,
		Name:          name,
		Username:      uname,
		Email:         email,
		Roles:         roles,
		IsActive:      isActive,
		CreatedAt:     tstamp,
		UpdatedAt:     tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateSection(t *testing.T, repo school.Repository, institutionID, name string) school.Section {
	t.Helper()
	sec, err := repo.CreateSection(context.Background(), school.Section{
		InstitutionID: institutionID,
		Name:          name,
		Level:         "Primaria",
		Grade:         "1",
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateSection() failed: %v", err)
	}
	return sec
}

// CreateStudent creates an active student. guardian may be nil.
func CreateStudent(t *testing.T, repo school.Repository, institutionID, sectionID, code, firstName, lastName string, guardian *user.User) school.Student {
	t.Helper()
	now := time.Now().UTC()
	std := school.Student{
		InstitutionID: institutionID,
		SectionID:     sectionID,
		Code:          code,
		FirstName:     firstName,
		LastName:      lastName,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if guardian != nil {
		std.GuardianID = &guardian.ID
		std.GuardianName = guardian.Name
		std.GuardianEmail = guardian.Email
	}
	std, err := repo.CreateStudent(context.Background(), std)
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return std
}

func CreateConcept(t *testing.T, repo finance.Repository, institutionID, name, amount, dailyMoraRate string) finance.Concept {
	t.Helper()
	now := time.Now().UTC()
	concept, err := repo.CreateConcept(context.Background(), finance.Concept{
		InstitutionID:   institutionID,
		Name:            name,
		SuggestedAmount: decimal.RequireFromString(amount),
		Currency:        "PEN",
		DailyMoraRate:   decimal.RequireFromString(dailyMoraRate),
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		t.Fatalf("CreateConcept() failed: %v", err)
	}
	return concept
}

// CreateEntry creates an unpaid schedule entry of amountDue, with amountPaid already paid.
func CreateEntry(t *testing.T, repo finance.Repository, std school.Student, concept finance.Concept, amountDue, amountPaid string, dueDate core.Date) finance.ScheduleEntry {
	t.Helper()
	now := time.Now().UTC()
	due := decimal.RequireFromString(amountDue)
	paid := decimal.RequireFromString(amountPaid)
	entries, err := repo.CreateEntries(context.Background(), []finance.ScheduleEntry{{
		InstitutionID: std.InstitutionID,
		StudentID:     std.ID,
		ConceptID:     concept.ID,
		Description:   concept.Name,
		AmountDue:     due,
		AmountPaid:    paid,
		AccruedMora:   decimal.Zero,
		DueDate:       dueDate,
		IsPaid:        paid.GreaterThanOrEqual(due),
		CreatedAt:     now,
		UpdatedAt:     now,
		StudentName:   std.FullName(),
		SectionID:     std.SectionID,
		ConceptName:   concept.Name,
	}})
	if err != nil {
		t.Fatalf("CreateEntry() failed: %v", err)
	}
	return entries[0]
}
