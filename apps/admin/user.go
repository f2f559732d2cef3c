package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/trezcool/proofmate/core"
	"github.com/trezcool/proofmate/core/user"
)

// addUser creates a user, or updates the one owning email. The account ends up active.
func (cli *commandLine) addUser(name, email, role, institution, pwd string) error {
	ctx := context.Background()
	email = core.CleanString(email, true /* lower */)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	active := true

	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	switch err {
	case nil:
		data := user.UpdateUser{
			Name:        name,
			Role:        role,
			Institution: institution,
			Password:    pwd,
			IsActive:    &active,
		}
		if err = data.Validate(usr, cli.validate, cli.usrSvc); err != nil {
			return cli.explain(err)
		}
		if usr, err = cli.usrSvc.Update(ctx, usr, data); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "updated %s user %s (id: %d)\n", usr.Role, usr.Email, usr.ID)

	case user.ErrNotFound:
		data := user.NewUser{
			Name:        name,
			Email:       email,
			Password:    pwd,
			Role:        role,
			Institution: institution,
			IsActive:    &active,
		}
		if err = data.Validate(cli.validate, cli.usrSvc); err != nil {
			return cli.explain(err)
		}
		if usr, err = cli.usrSvc.Create(ctx, data); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "created %s user %s (id: %d)\n", usr.Role, usr.Email, usr.ID)

	default:
		return err
	}
	return nil
}

func (cli *commandLine) resetPassword(email, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	data := user.PasswordHolder{Password: pwd}
	if err = data.Validate(usr, cli.validate); err != nil {
		return cli.explain(err)
	}
	if _, err = cli.usrSvc.SetPassword(ctx, usr, pwd); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "password updated for %s\n", usr.Email)
	return nil
}
