package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/user"
)

type userRepository struct {
	access
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{access{db: db}}
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedIDs ...string) error {
	return repo.read(func(t *tables) error {
		for _, usr := range t.users {
			if contains(excludedIDs, usr.ID) {
				continue
			}
			if usr.Username == username {
				return user.ErrUsernameExists
			}
			if email != "" && usr.Email == email {
				return user.ErrEmailExists
			}
		}
		return nil
	})
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	err := repo.write(func(t *tables) error {
		usr.ID = newID()
		t.users[usr.ID] = usr
		return nil
	})
	return usr, err
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (usr user.User, err error) {
	err = repo.read(func(t *tables) error {
		if filter.ID != "" {
			u, ok := t.users[filter.ID]
			if !ok {
				return user.ErrNotFound
			}
			usr = u
			return nil
		}
		for _, u := range t.users {
			if contains(filter.UsernameOrEmail, u.Username) || (u.Email != "" && contains(filter.UsernameOrEmail, u.Email)) {
				usr = u
				return nil
			}
		}
		return user.ErrNotFound
	})
	return usr, err
}

func (repo *userRepository) QueryUsers(_ context.Context, institutionID string, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	users := make([]user.User, 0)
	_ = repo.read(func(t *tables) error {
		for _, usr := range t.users {
			if usr.InstitutionID != institutionID {
				continue
			}
			if filter != nil {
				if filter.Search != "" && !containsFold(filter.Search, usr.Name, usr.Username, usr.Email) {
					continue
				}
				if len(filter.Roles) > 0 && !hasRolePrefix(usr, filter.Roles) {
					continue
				}
				if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
					continue
				}
			}
			users = append(users, usr)
		}
		return nil
	})

	sortBy(users, ordering, map[string]func(a, b user.User) int{
		"name":       func(a, b user.User) int { return strings.Compare(a.Name, b.Name) },
		"username":   func(a, b user.User) int { return strings.Compare(a.Username, b.Username) },
		"created_at": func(a, b user.User) int { return a.CreatedAt.Compare(b.CreatedAt) },
		"last_login": func(a, b user.User) int { return a.LastLogin.Compare(b.LastLogin) },
	}, func(a, b user.User) int { return strings.Compare(a.Username, b.Username) })
	return users, nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	err := repo.write(func(t *tables) error {
		if _, ok := t.users[usr.ID]; !ok {
			return user.ErrNotFound
		}
		t.users[usr.ID] = usr
		return nil
	})
	if err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func hasRolePrefix(usr user.User, roles []string) bool {
	for _, role := range roles {
		if usr.RoleStartsWith(role) {
			return true
		}
	}
	return false
}

// helpers shared by the repositories

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// containsFold reports whether any of fields contains kw, case-insensitively.
func containsFold(kw string, fields ...string) bool {
	kw = strings.ToLower(kw)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), kw) {
			return true
		}
	}
	return false
}

// sortBy sorts items by the known orderings, then by fallback.
func sortBy[T any](items []T, ordering []core.DBOrdering, cmps map[string]func(a, b T) int, fallback func(a, b T) int) {
	sort.SliceStable(items, func(i, j int) bool {
		for _, ord := range ordering {
			cmp, ok := cmps[ord.Field]
			if !ok {
				continue
			}
			c := cmp(items[i], items[j])
			if !ord.Ascending {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return fallback(items[i], items[j]) < 0
	})
}
