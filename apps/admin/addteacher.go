package main

import (
	"context"
	"encoding/json"

	"github.com/hcanning/homeroom/core/school"
)

func (cli *commandLine) addTeacher(email, name, pwd string) error {
	teacher, err := cli.svc.CreateTeacher(context.Background(), school.NewTeacher{
		Email:    email,
		Password: pwd,
		Name:     name,
	})
	if err != nil {
		return err
	}
	return json.NewEncoder(cli.out).Encode(teacher)
}
