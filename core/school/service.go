package school

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core"
)

var (
	ErrInstitutionNotFound = core.NewNotFoundError("institution not found")
	ErrSectionNotFound     = core.NewNotFoundError("section not found")
	ErrStudentNotFound     = core.NewNotFoundError("student not found")
	ErrStudentCodeExists   = errors.New("a student with this code already exists")
)

type (
	Repository interface {
		CreateInstitution(ctx context.Context, inst Institution) (Institution, error)
		GetInstitution(ctx context.Context, id string) (Institution, error)
		QueryInstitutions(ctx context.Context) ([]Institution, error)

		CreateSection(ctx context.Context, sec Section) (Section, error)
		GetSection(ctx context.Context, institutionID, id string) (Section, error)
		QuerySections(ctx context.Context, institutionID string) ([]Section, error)

		CreateStudent(ctx context.Context, std Student) (Student, error)
		GetStudent(ctx context.Context, institutionID, id string) (Student, error)
		QueryStudents(ctx context.Context, institutionID string, filter *StudentFilter) ([]Student, error)
	}

	Service struct {
		repo            Repository
		validate        *validator.Validate
		defaultCurrency string
	}
)

func NewService(repo Repository, validate *validator.Validate, conf *core.Config) *Service {
	return &Service{repo: repo, validate: validate, defaultCurrency: conf.Finance.DefaultCurrency}
}

func (svc *Service) CreateInstitution(ctx context.Context, ni NewInstitution) (Institution, error) {
	ni.Name = core.CollapseSpaces(ni.Name)
	ni.Currency = strings.ToUpper(core.CleanString(ni.Currency))
	if err := svc.validate.Struct(ni); err != nil {
		return Institution{}, err
	}
	if ni.Currency == "" {
		ni.Currency = svc.defaultCurrency
	}
	return svc.repo.CreateInstitution(ctx, Institution{
		Name:      ni.Name,
		Currency:  ni.Currency,
		CreatedAt: time.Now().UTC(),
	})
}

func (svc *Service) GetInstitution(ctx context.Context, id string) (Institution, error) {
	return svc.repo.GetInstitution(ctx, id)
}

func (svc *Service) QueryInstitutions(ctx context.Context) ([]Institution, error) {
	return svc.repo.QueryInstitutions(ctx)
}

func (svc *Service) CreateSection(ctx context.Context, institutionID string, ns NewSection) (Section, error) {
	ns.Clean()
	if err := svc.validate.Struct(ns); err != nil {
		return Section{}, err
	}
	return svc.repo.CreateSection(ctx, Section{
		InstitutionID: institutionID,
		Name:          ns.Name,
		Level:         ns.Level,
		Grade:         ns.Grade,
		CreatedAt:     time.Now().UTC(),
	})
}

func (svc *Service) QuerySections(ctx context.Context, institutionID string) ([]Section, error) {
	return svc.repo.QuerySections(ctx, institutionID)
}

func (svc *Service) CreateStudent(ctx context.Context, institutionID string, ns NewStudent) (Student, error) {
	ns.Clean()
	if err := svc.validate.Struct(ns); err != nil {
		return Student{}, err
	}
	if _, err := svc.repo.GetSection(ctx, institutionID, ns.SectionID); err != nil {
		if errors.Cause(err) == ErrSectionNotFound {
			return Student{}, core.NewValidationError(err, core.FieldError{Field: "section_id", Error: err.Error()})
		}
		return Student{}, errors.Wrap(err, "getting section")
	}

	now := time.Now().UTC()
	std := Student{
		InstitutionID: institutionID,
		SectionID:     ns.SectionID,
		Code:          ns.Code,
		FirstName:     ns.FirstName,
		LastName:      ns.LastName,
		GuardianName:  ns.GuardianName,
		GuardianEmail: ns.GuardianEmail,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if ns.GuardianID != "" {
		std.GuardianID = &ns.GuardianID
	}

	std, err := svc.repo.CreateStudent(ctx, std)
	if err != nil {
		if errors.Cause(err) == ErrStudentCodeExists {
			return Student{}, core.NewValidationError(err, core.FieldError{Field: "code", Error: ErrStudentCodeExists.Error()})
		}
		return Student{}, err
	}
	return std, nil
}

func (svc *Service) GetStudent(ctx context.Context, institutionID, id string) (Student, error) {
	return svc.repo.GetStudent(ctx, institutionID, id)
}

func (svc *Service) QueryStudents(ctx context.Context, institutionID string, filter *StudentFilter) ([]Student, error) {
	return svc.repo.QueryStudents(ctx, institutionID, filter)
}
