package school

import (
	"time"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core"
)

// Institution is a tenant: every other object belongs to exactly one Institution.
type Institution struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Currency  string    `json:"currency" db:"currency"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Section struct {
	ID            string    `json:"id" db:"id"`
	InstitutionID string    `json:"institution_id" db:"institution_id"`
	Name          string    `json:"name" db:"name"`
	Level         string    `json:"level" db:"level"` // eg: Primaria, Secundaria
	Grade         string    `json:"grade" db:"grade"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

type Student struct {
	ID            string    `json:"id" db:"id"`
	InstitutionID string    `json:"institution_id" db:"institution_id"`
	SectionID     string    `json:"section_id" db:"section_id"`
	Code          string    `json:"code" db:"code"`
	FirstName     string    `json:"first_name" db:"first_name"`
	LastName      string    `json:"last_name" db:"last_name"`
	GuardianID    *string   `json:"guardian_id" db:"guardian_id"`
	GuardianName  string    `json:"guardian_name" db:"guardian_name"`
	GuardianEmail string    `json:"guardian_email" db:"guardian_email"`
	IsActive      bool      `json:"is_active" db:"is_active"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

func (s Student) FullName() string {
	return s.LastName + ", " + s.FirstName
}

// HasGuardian reports whether userID is the guardian of the Student.
func (s Student) HasGuardian(userID string) bool {
	return s.GuardianID != nil && *s.GuardianID == userID
}

type NewInstitution struct {
	Name     string `json:"name" validate:"required"`
	Currency string `json:"currency" validate:"omitempty,currency"`
}

type NewSection struct {
	Name  string `json:"name" validate:"required"`
	Level string `json:"level"`
	Grade string `json:"grade"`
}

func (ns *NewSection) Clean() {
	ns.Name = core.CollapseSpaces(ns.Name)
	ns.Level = core.CleanString(ns.Level)
	ns.Grade = core.CleanString(ns.Grade)
}

type NewStudent struct {
	SectionID     string `json:"section_id" validate:"required"`
	Code          string `json:"code" validate:"required"`
	FirstName     string `json:"first_name" validate:"required"`
	LastName      string `json:"last_name" validate:"required"`
	GuardianID    string `json:"guardian_id"`
	GuardianName  string `json:"guardian_name"`
	GuardianEmail string `json:"guardian_email" validate:"omitempty,email"`
}

func (ns *NewStudent) Clean() {
	ns.Code = core.CleanString(ns.Code)
	ns.FirstName = core.CollapseSpaces(ns.FirstName)
	ns.LastName = core.CollapseSpaces(ns.LastName)
	ns.GuardianID = core.CleanString(ns.GuardianID)
	ns.GuardianName = core.CollapseSpaces(ns.GuardianName)
	ns.GuardianEmail = core.CleanString(ns.GuardianEmail, true /* lower */)
}

type StudentFilter struct {
	SectionID  string `query:"section_id"`
	GuardianID string `query:"guardian_id"`
	Search     string `query:"search"` // code, first or last name
	IsActive   *bool  `query:"-"` // read with the is_active param
}

func (sf *StudentFilter) Clean() {
	sf.SectionID = core.CleanString(sf.SectionID)
	sf.GuardianID = core.CleanString(sf.GuardianID)
	sf.Search = core.CleanString(sf.Search)
}
