package main

import (
	"context"

	"github.com/hcanning/homeroom/core/school"
)

// resetAdmin overwrites the admin credentials. Teachers and students are kept.
func (cli *commandLine) resetAdmin(email, pwd string) error {
	return cli.svc.ForceSetupAdmin(context.Background(), school.Credentials{Email: email, Password: pwd})
}
