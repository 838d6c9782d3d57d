package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/school"
)

var (
	institutionColumns = []string{"id", "name", "currency", "created_at"}
	sectionColumns     = []string{"id", "institution_id", "name", "level", "grade", "created_at"}
	studentColumns     = []string{
		"id", "institution_id", "section_id", "code", "first_name", "last_name",
		"guardian_id", "guardian_name", "guardian_email", "is_active", "created_at", "updated_at",
	}
)

type schoolRepository struct {
	conn
}

var _ school.Repository = (*schoolRepository)(nil)

func NewSchoolRepository(db core.DB) *schoolRepository {
	return &schoolRepository{newConn(db)}
}

func (repo *schoolRepository) CreateInstitution(ctx context.Context, inst school.Institution) (school.Institution, error) {
	inst.ID = newID()
	_, err := repo.run(ctx, psql.Insert("institutions").Columns(institutionColumns...).
		Values(inst.ID, inst.Name, inst.Currency, inst.CreatedAt))
	if err != nil {
		return school.Institution{}, errors.Wrap(err, "inserting institution")
	}
	return inst, nil
}

func (repo *schoolRepository) GetInstitution(ctx context.Context, id string) (school.Institution, error) {
	if !validUUID(id) {
		return school.Institution{}, school.ErrInstitutionNotFound
	}
	var inst school.Institution
	err := repo.get(ctx, &inst, psql.Select(institutionColumns...).From("institutions").Where(sq.Eq{"id": id}))
	if err != nil {
		return school.Institution{}, trapNoRowsErr(err, school.ErrInstitutionNotFound, "getting institution")
	}
	return inst, nil
}

func (repo *schoolRepository) QueryInstitutions(ctx context.Context) ([]school.Institution, error) {
	insts := make([]school.Institution, 0)
	if err := repo.selekt(ctx, &insts, psql.Select(institutionColumns...).From("institutions").OrderBy("name")); err != nil {
		return nil, errors.Wrap(err, "querying institutions")
	}
	return insts, nil
}

func (repo *schoolRepository) CreateSection(ctx context.Context, sec school.Section) (school.Section, error) {
	sec.ID = newID()
	_, err := repo.run(ctx, psql.Insert("sections").Columns(sectionColumns...).
		Values(sec.ID, sec.InstitutionID, sec.Name, sec.Level, sec.Grade, sec.CreatedAt))
	if err != nil {
		return school.Section{}, errors.Wrap(err, "inserting section")
	}
	return sec, nil
}

func (repo *schoolRepository) GetSection(ctx context.Context, institutionID, id string) (school.Section, error) {
	if !validUUID(id) {
		return school.Section{}, school.ErrSectionNotFound
	}
	var sec school.Section
	err := repo.get(ctx, &sec, psql.Select(sectionColumns...).From("sections").
		Where(sq.Eq{"id": id, "institution_id": institutionID}))
	if err != nil {
		return school.Section{}, trapNoRowsErr(err, school.ErrSectionNotFound, "getting section")
	}
	return sec, nil
}

func (repo *schoolRepository) QuerySections(ctx context.Context, institutionID string) ([]school.Section, error) {
	secs := make([]school.Section, 0)
	err := repo.selekt(ctx, &secs, psql.Select(sectionColumns...).From("sections").
		Where(sq.Eq{"institution_id": institutionID}).OrderBy("level", "grade", "name"))
	if err != nil {
		return nil, errors.Wrap(err, "querying sections")
	}
	return secs, nil
}

func (repo *schoolRepository) CreateStudent(ctx context.Context, std school.Student) (school.Student, error) {
	std.ID = newID()
	_, err := repo.run(ctx, psql.Insert("students").Columns(studentColumns...).Values(
		std.ID, std.InstitutionID, std.SectionID, std.Code, std.FirstName, std.LastName,
		std.GuardianID, std.GuardianName, std.GuardianEmail, std.IsActive, std.CreatedAt, std.UpdatedAt,
	))
	if err != nil {
		if uniqueViolation(err) == "students_institution_id_code_key" {
			return school.Student{}, school.ErrStudentCodeExists
		}
		return school.Student{}, errors.Wrap(err, "inserting student")
	}
	return std, nil
}

func (repo *schoolRepository) GetStudent(ctx context.Context, institutionID, id string) (school.Student, error) {
	if !validUUID(id) {
		return school.Student{}, school.ErrStudentNotFound
	}
	var std school.Student
	err := repo.get(ctx, &std, psql.Select(studentColumns...).From("students").
		Where(sq.Eq{"id": id, "institution_id": institutionID}))
	if err != nil {
		return school.Student{}, trapNoRowsErr(err, school.ErrStudentNotFound, "getting student")
	}
	return std, nil
}

func (repo *schoolRepository) QueryStudents(ctx context.Context, institutionID string, filter *school.StudentFilter) ([]school.Student, error) {
	query := psql.Select(studentColumns...).From("students").Where(sq.Eq{"institution_id": institutionID})
	if filter != nil {
		if filter.SectionID != "" {
			if !validUUID(filter.SectionID) {
				return []school.Student{}, nil
			}
			query = query.Where(sq.Eq{"section_id": filter.SectionID})
		}
		if filter.GuardianID != "" {
			if !validUUID(filter.GuardianID) {
				return []school.Student{}, nil
			}
			query = query.Where(sq.Eq{"guardian_id": filter.GuardianID})
		}
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			query = query.Where(sq.Or{sq.ILike{"code": val}, sq.ILike{"first_name": val}, sq.ILike{"last_name": val}})
		}
		if filter.IsActive != nil {
			query = query.Where(sq.Eq{"is_active": *filter.IsActive})
		}
	}

	stds := make([]school.Student, 0)
	if err := repo.selekt(ctx, &stds, query.OrderBy("last_name", "first_name")); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	return stds, nil
}
