package inmemdb

import (
	"context"
	"strings"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/school"
)

type schoolRepository struct {
	access
}

var _ school.Repository = (*schoolRepository)(nil)

func NewSchoolRepository(db *DB) *schoolRepository {
	return &schoolRepository{access{db: db}}
}

func (repo *schoolRepository) CreateInstitution(_ context.Context, inst school.Institution) (school.Institution, error) {
	err := repo.write(func(t *tables) error {
		inst.ID = newID()
		t.institutions[inst.ID] = inst
		return nil
	})
	return inst, err
}

func (repo *schoolRepository) GetInstitution(_ context.Context, id string) (inst school.Institution, err error) {
	err = repo.read(func(t *tables) error {
		var ok bool
		if inst, ok = t.institutions[id]; !ok {
			return school.ErrInstitutionNotFound
		}
		return nil
	})
	return inst, err
}

func (repo *schoolRepository) QueryInstitutions(_ context.Context) ([]school.Institution, error) {
	insts := make([]school.Institution, 0)
	_ = repo.read(func(t *tables) error {
		for _, inst := range t.institutions {
			insts = append(insts, inst)
		}
		return nil
	})
	sortBy(insts, nil, nil, func(a, b school.Institution) int { return strings.Compare(a.Name, b.Name) })
	return insts, nil
}

func (repo *schoolRepository) CreateSection(_ context.Context, sec school.Section) (school.Section, error) {
	err := repo.write(func(t *tables) error {
		sec.ID = newID()
		t.sections[sec.ID] = sec
		return nil
	})
	return sec, err
}

func (repo *schoolRepository) GetSection(_ context.Context, institutionID, id string) (sec school.Section, err error) {
	err = repo.read(func(t *tables) error {
		s, ok := t.sections[id]
		if !ok || s.InstitutionID != institutionID {
			return school.ErrSectionNotFound
		}
		sec = s
		return nil
	})
	return sec, err
}

func (repo *schoolRepository) QuerySections(_ context.Context, institutionID string) ([]school.Section, error) {
	secs := make([]school.Section, 0)
	_ = repo.read(func(t *tables) error {
		for _, sec := range t.sections {
			if sec.InstitutionID == institutionID {
				secs = append(secs, sec)
			}
		}
		return nil
	})
	sortBy(secs, nil, nil, func(a, b school.Section) int { return strings.Compare(a.Name, b.Name) })
	return secs, nil
}

func (repo *schoolRepository) CreateStudent(_ context.Context, std school.Student) (school.Student, error) {
	err := repo.write(func(t *tables) error {
		for _, s := range t.students {
			if s.InstitutionID == std.InstitutionID && s.Code == std.Code {
				return school.ErrStudentCodeExists
			}
		}
		std.ID = newID()
		t.students[std.ID] = std
		return nil
	})
	if err != nil {
		return school.Student{}, err
	}
	return std, nil
}

func (repo *schoolRepository) GetStudent(_ context.Context, institutionID, id string) (std school.Student, err error) {
	err = repo.read(func(t *tables) error {
		s, ok := t.students[id]
		if !ok || s.InstitutionID != institutionID {
			return school.ErrStudentNotFound
		}
		std = s
		return nil
	})
	return std, err
}

func (repo *schoolRepository) QueryStudents(_ context.Context, institutionID string, filter *school.StudentFilter) ([]school.Student, error) {
	stds := make([]school.Student, 0)
	_ = repo.read(func(t *tables) error {
		for _, std := range t.students {
			if std.InstitutionID != institutionID {
				continue
			}
			if filter != nil {
				if filter.SectionID != "" && std.SectionID != filter.SectionID {
					continue
				}
				if filter.GuardianID != "" && !std.HasGuardian(filter.GuardianID) {
					continue
				}
				if filter.Search != "" && !containsFold(filter.Search, std.Code, std.FirstName, std.LastName) {
					continue
				}
				if filter.IsActive != nil && std.IsActive != *filter.IsActive {
					continue
				}
			}
			stds = append(stds, std)
		}
		return nil
	})
	sortBy(stds, nil, nil, func(a, b school.Student) int { return strings.Compare(a.FullName(), b.FullName()) })
	return stds, nil
}
