package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/user"
)

// addUser updates the user matched by username or email, or creates it. The user is (re)activated.
func (cli *commandLine) addUser(nu user.NewUser, isAdmin bool) error {
	ctx := context.Background()
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	if isAdmin {
		nu.Roles = user.AllRoles
	}

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{nu.Username, nu.Email}})
	switch {
	case errors.Is(err, user.ErrNotFound):
		if nu.Name == "" {
			nu.Name = nu.Username
			if nu.Name == "" {
				nu.Name = nu.Email
			}
		}
		if err = nu.Validate(cli.validate, cli.usrSvc); err != nil {
			return err
		}
		if usr, err = cli.usrSvc.Create(ctx, nu); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "user %s created\n", usr.ID)
		return nil
	case err != nil:
		return err
	}

	pc := user.PasswordChange{User: usr, Password: nu.Password, PasswordConfirm: nu.PasswordConfirm}
	if err = pc.Validate(cli.validate); err != nil {
		return err
	}
	if nu.Name = core.CleanString(nu.Name); nu.Name != "" {
		usr.Name = nu.Name
	}
	if nu.Phone = core.NormalizePhone(nu.Phone); nu.Phone != "" {
		usr.Phone = nu.Phone
	}
	if len(nu.Roles) > 0 {
		usr.Roles = nu.Roles
	}
	usr.SetActive(true)
	if err = usr.SetPassword(nu.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	if usr, err = cli.usrSvc.Save(ctx, usr); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "user %s updated\n", usr.ID)
	return nil
}
