package main

import (
	"context"
	"fmt"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ngazi/core/student"
)

type demoStudent struct {
	name      string
	email     string
	globalExp int
	scopes    map[string]int // scope -> exp
}

var demoStudents = []demoStudent{
	{name: "Asha Mwangi", email: "asha@demo.local", globalExp: 950, scopes: map[string]int{"class-7a": 420}},
	{name: "Kwame Otieno", email: "kwame@demo.local", globalExp: 260, scopes: map[string]int{"class-7a": 80}},
	{name: "Neema Said", email: "neema@demo.local", globalExp: 1500, scopes: map[string]int{"class-7b": 600}},
	{name: "Juma Baraka", email: "juma@demo.local", globalExp: 40},
	{name: "Zuri Achieng", email: "zuri@demo.local", globalExp: 610, scopes: map[string]int{"class-7b": 230}},
}

// seedDemo creates sample students with global and scoped progression.
func (cli *commandLine) seedDemo() error {
	ctx := context.Background()

	for _, demo := range demoStudents {
		std, err := cli.stdSvc.Create(ctx, student.NewStudent{Name: demo.name, Email: demo.email})
		if err != nil {
			return err
		}

		if _, err := cli.progSvc.AddExperience(ctx, std.ID, null.String{}, demo.globalExp); err != nil {
			return err
		}
		for scope, exp := range demo.scopes {
			if _, err := cli.progSvc.AddExperience(ctx, std.ID, null.StringFrom(scope), exp); err != nil {
				return err
			}
		}
		fmt.Printf("created %s (%s)\n", std.Name, std.ID)
	}
	return nil
}
