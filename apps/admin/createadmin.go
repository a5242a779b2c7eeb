package main

import (
	"context"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

// createAdmin creates an admin account, or leaves an existing one untouched.
func (cli *commandLine) createAdmin(email, pwd string) error {
	ctx := context.Background()
	email = core.CleanString(email, true /* lower */)

	if _, err := cli.usrSvc.GetByEmail(ctx, email); err == nil {
		logger.Printf("account %q already exists", email)
		return nil
	} else if err != user.ErrNotFound {
		return err
	}

	usr, err := cli.usrSvc.Create(ctx, user.NewUser{
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
		Role:            user.RoleAdmin,
	})
	if err != nil {
		return err
	}
	logger.Printf("admin account %q created (id=%d)", usr.Email, usr.ID)
	return nil
}
