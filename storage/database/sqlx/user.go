package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/user"
)

const usersTable = "users"

var userColumns = []string{
	"id", "institution_id", "name", "username", "email", "is_active", "roles",
	"password_hash", "created_at", "updated_at", "last_login",
}

var userOrderings = map[string]string{
	"name":       "name",
	"username":   "username",
	"email":      "email",
	"created_at": "created_at",
	"last_login": "last_login",
}

type userRow struct {
	ID            string         `db:"id"`
	InstitutionID string         `db:"institution_id"`
	Name          string         `db:"name"`
	Username      string         `db:"username"`
	Email         string         `db:"email"`
	IsActive      bool           `db:"is_active"`
	Roles         pq.StringArray `db:"roles"`
	PasswordHash  []byte         `db:"password_hash"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
	LastLogin     sql.NullTime   `db:"last_login"`
}

func (row userRow) user() user.User {
	return user.User{
		ID:            row.ID,
		InstitutionID: row.InstitutionID,
		Name:          row.Name,
		Username:      row.Username,
		Email:         row.Email,
		IsActive:      row.IsActive,
		Roles:         []string(row.Roles),
		PasswordHash:  row.PasswordHash,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
		LastLogin:     row.LastLogin.Time,
	}
}

type userRepository struct {
	conn
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db core.DB) *userRepository {
	return &userRepository{newConn(db)}
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedIDs ...string) error {
	query := psql.Select("username").From(usersTable).Where(sq.Or{
		sq.Eq{"username": username},
		sq.And{sq.NotEq{"email": ""}, sq.Eq{"email": email}},
	}).Limit(1)
	if len(excludedIDs) > 0 {
		query = query.Where(sq.NotEq{"id": excludedIDs})
	}

	var taken string
	if err := repo.get(ctx, &taken, query); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return nil
		}
		return errors.Wrap(err, "checking user uniqueness")
	}
	if taken == username {
		return user.ErrUsernameExists
	}
	return user.ErrEmailExists
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = newID()
	var lastLogin interface{}
	if !usr.LastLogin.IsZero() {
		lastLogin = usr.LastLogin
	}
	_, err := repo.run(ctx, psql.Insert(usersTable).Columns(userColumns...).Values(
		usr.ID, usr.InstitutionID, usr.Name, usr.Username, usr.Email, usr.IsActive, pq.StringArray(usr.Roles),
		usr.PasswordHash, usr.CreatedAt, usr.UpdatedAt, lastLogin,
	))
	if err != nil {
		switch uniqueViolation(err) {
		case "users_username_idx":
			return user.User{}, user.ErrUsernameExists
		case "users_email_idx":
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	query := psql.Select(userColumns...).From(usersTable)
	switch {
	case filter.ID != "":
		if !validUUID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		query = query.Where(sq.Eq{"id": filter.ID})
	case len(filter.UsernameOrEmail) > 0:
		query = query.Where(sq.Or{
			sq.Eq{"username": filter.UsernameOrEmail},
			sq.And{sq.NotEq{"email": ""}, sq.Eq{"email": filter.UsernameOrEmail}},
		}).OrderBy("username").Limit(1)
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := repo.get(ctx, &row, query); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "getting user")
	}
	return row.user(), nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, institutionID string, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	query := psql.Select(userColumns...).From(usersTable).Where(sq.Eq{"institution_id": institutionID})

	if filter != nil {
		// users with Name, Username or Email matching the search keyword
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			query = query.Where(sq.Or{sq.ILike{"name": val}, sq.ILike{"username": val}, sq.ILike{"email": val}})
		}
		// users with any role that starts with any of the provided roles
		if len(filter.Roles) > 0 {
			roles := make(sq.Or, 0, len(filter.Roles))
			for _, role := range filter.Roles {
				roles = append(roles, sq.Expr("EXISTS (SELECT 1 FROM UNNEST(roles) user_role WHERE user_role LIKE ?)", role+"%"))
			}
			query = query.Where(roles)
		}
		if filter.IsActive != nil {
			query = query.Where(sq.Eq{"is_active": *filter.IsActive})
		}
	}
	query = orderBy(query, ordering, userOrderings, "username ASC")

	var rows []userRow
	if err := repo.selekt(ctx, &rows, query); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.user())
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	var lastLogin interface{}
	if !usr.LastLogin.IsZero() {
		lastLogin = usr.LastLogin
	}
	n, err := repo.run(ctx, psql.Update(usersTable).SetMap(map[string]interface{}{
		"name":          usr.Name,
		"username":      usr.Username,
		"email":         usr.Email,
		"is_active":     usr.IsActive,
		"roles":         pq.StringArray(usr.Roles),
		"password_hash": usr.PasswordHash,
		"updated_at":    usr.UpdatedAt,
		"last_login":    lastLogin,
	}).Where(sq.Eq{"id": usr.ID}))
	if err != nil {
		switch uniqueViolation(err) {
		case "users_username_idx":
			return user.User{}, user.ErrUsernameExists
		case "users_email_idx":
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}
