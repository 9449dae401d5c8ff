package main

import (
	"context"

	"github.com/trezcool/chuo/core/user"
)

func (cli *commandLine) resetPassword(uname, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	pc := user.PasswordChange{User: usr, Password: pwd, PasswordConfirm: pwd}
	if err := pc.Validate(cli.validate); err != nil {
		return err
	}
	if _, err := cli.usrSvc.ChangePassword(ctx, pc); err != nil {
		return err
	}
	return nil
}
