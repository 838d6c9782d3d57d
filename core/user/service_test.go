package user_test

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/user"
	inmemdb "github.com/Jackson-sch/sistema-escolar-pro-sub001/storage/database/inmem"
	testutil "github.com/Jackson-sch/sistema-escolar-pro-sub001/tests"
)

func setup(t *testing.T) (*user.Service, user.Repository, string) {
	t.Helper()
	validate, _ := testutil.NewValidator()
	db := inmemdb.Open()
	inst := testutil.CreateInstitution(t, inmemdb.NewSchoolRepository(db), "Colegio San Martín")
	repo := inmemdb.NewUserRepository(db)
	return user.NewService(repo, validate), repo, inst.ID
}

func TestService_Create(t *testing.T) {
	svc, repo, instID := setup(t)
	ctx := context.Background()
	testutil.CreateUser(t, repo, instID, "Rosa", "rquispe", "rosa@test.pe", "", []string{user.RoleParent}, true)

	pwd := "Sup3rS3cr3t!"
	tests := []struct {
		name      string
		nu        user.NewUser
		wantField string
	}{
		{name: "missing name", nu: user.NewUser{Username: "jdoe", Password: pwd, PasswordConfirm: pwd}, wantField: "name"},
		{name: "short username", nu: user.NewUser{Name: "J", Username: "jd", Password: pwd, PasswordConfirm: pwd}, wantField: "username"},
		{name: "bad email", nu: user.NewUser{Name: "J", Username: "jdoe", Email: "nope", Password: pwd, PasswordConfirm: pwd}, wantField: "email"},
		{name: "passwords mismatch", nu: user.NewUser{Name: "J", Username: "jdoe", Password: pwd, PasswordConfirm: pwd + "x"}, wantField: "password_confirm"},
		{name: "weak password", nu: user.NewUser{Name: "J", Username: "jdoe", Password: "password", PasswordConfirm: "password"}, wantField: "password"},
		{name: "unknown role", nu: user.NewUser{Name: "J", Username: "jdoe", Password: pwd, PasswordConfirm: pwd, Roles: []string{"teacher:"}}, wantField: "roles"},
		{name: "username taken", nu: user.NewUser{Name: "J", Username: " RQuispe ", Password: pwd, PasswordConfirm: pwd}, wantField: "username"},
		{name: "email taken", nu: user.NewUser{Name: "J", Username: "jdoe", Email: "ROSA@test.pe", Password: pwd, PasswordConfirm: pwd}, wantField: "email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, instID, tt.nu)
			if err == nil {
				t.Fatal("Create() expected an error")
			}
			if !hasField(err, tt.wantField) {
				t.Errorf("Create() error = %v; want an error on %q", err, tt.wantField)
			}
		})
	}

	usr, err := svc.Create(ctx, instID, user.NewUser{
		Name:            " Tesorera ",
		Username:        "Tesorera",
		Email:           "TESORERIA@test.pe",
		Password:        pwd,
		PasswordConfirm: pwd,
		Roles:           []string{user.RoleAdminTreasurer},
	})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	assert.Equal(t, "Tesorera", usr.Name)
	assert.Equal(t, "tesorera", usr.Username)
	assert.Equal(t, "tesoreria@test.pe", usr.Email)
	assert.Equal(t, instID, usr.InstitutionID)
	assert.True(t, usr.IsActive)
	assert.True(t, usr.IsAdmin())
	assert.NoError(t, usr.CheckPassword(pwd))

	got, err := svc.GetByUsernameOrEmail(ctx, " TESORERIA@test.pe")
	if assert.NoError(t, err) {
		assert.Equal(t, usr.ID, got.ID)
	}
}

func TestService_GetByID(t *testing.T) {
	svc, repo, instID := setup(t)
	usr := testutil.CreateUser(t, repo, instID, "Rosa", "rquispe", "rosa@test.pe", "", nil, true)

	got, err := svc.GetByID(context.Background(), usr.ID)
	if assert.NoError(t, err) {
		assert.Equal(t, usr.Username, got.Username)
	}
	_, err = svc.GetByID(context.Background(), "nope")
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
}

func TestService_Query(t *testing.T) {
	svc, repo, instID := setup(t)
	ctx := context.Background()

	parent := testutil.CreateUser(t, repo, instID, "Rosa Quispe", "rquispe", "rosa@test.pe", "", []string{user.RoleParent}, true)
	admin := testutil.CreateUser(t, repo, instID, "Tesorera", "tesorera", "tesoreria@test.pe", "", []string{user.RoleAdminTreasurer}, true)
	inactive := testutil.CreateUser(t, repo, instID, "Ex Padre", "expadre", "ex@test.pe", "", []string{user.RoleParent}, false)
	testutil.CreateUser(t, repo, "other-institution", "Ajeno", "ajeno", "ajeno@test.pe", "", nil, true)

	bPtr := func(b bool) *bool { return &b }
	ids := func(users []user.User) []string {
		res := make([]string, 0, len(users))
		for _, u := range users {
			res = append(res, u.ID)
		}
		return res
	}

	tests := []struct {
		name   string
		filter *user.QueryFilter
		want   []string
	}{
		{name: "all", want: []string{parent.ID, admin.ID, inactive.ID}},
		{name: "search", filter: &user.QueryFilter{Search: "QUISPE"}, want: []string{parent.ID}},
		{name: "roles", filter: &user.QueryFilter{Roles: []string{user.RoleParent}}, want: []string{parent.ID, inactive.ID}},
		{name: "inactive", filter: &user.QueryFilter{IsActive: bPtr(false)}, want: []string{inactive.ID}},
		{name: "no match", filter: &user.QueryFilter{Search: "zzz"}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users, err := svc.Query(ctx, instID, tt.filter, nil)
			if err != nil {
				t.Fatalf("Query() failed: %v", err)
			}
			assert.ElementsMatch(t, tt.want, ids(users))
		})
	}
}

func hasField(err error, field string) bool {
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		for _, fe := range verr.Fields {
			if fe.Field == field {
				return true
			}
		}
		return false
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Field() == field {
				return true
			}
		}
	}
	return false
}
