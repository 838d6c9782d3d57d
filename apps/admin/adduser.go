package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/school"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/user"
)

var errOtherInstitution = errors.New("the user belongs to another institution")

func (cli *commandLine) addInstitution(name, currency string) error {
	inst, err := cli.schoolSvc.CreateInstitution(context.Background(), school.NewInstitution{Name: name, Currency: currency})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "institution %q created: %s\n", inst.Name, inst.ID)
	return nil
}

// addUser updates or creates an admin user.User of the institution.
func (cli *commandLine) addUser(institutionID, name, uname, email, pwd string, owner bool) error {
	ctx := context.Background()
	if _, err := cli.schoolSvc.GetInstitution(ctx, institutionID); err != nil {
		return err
	}
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	if name == "" {
		name = uname
	}
	lookup := []string{uname}
	if email != "" {
		lookup = append(lookup, email)
	}

	now := time.Now().UTC()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: lookup})
	switch {
	case errors.Cause(err) == user.ErrNotFound:
		usr = user.User{InstitutionID: institutionID, Username: uname, CreatedAt: now}
	case err != nil:
		return err
	case usr.InstitutionID != institutionID:
		return errOtherInstitution
	}

	usr.Name = name
	if email != "" {
		usr.Email = email
	}
	usr.IsActive = true
	usr.UpdatedAt = now
	usr.Roles = []string{user.RoleAdmin}
	if owner {
		usr.Roles = []string{user.RoleAdminOwner}
	}
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}

	if usr.ID == "" {
		usr, err = cli.usrRepo.CreateUser(ctx, usr)
	} else {
		usr, err = cli.usrRepo.UpdateUser(ctx, usr)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "user %q saved: %s\n", usr.Username, usr.ID)
	return nil
}
