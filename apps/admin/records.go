package main

import (
	"context"
	"fmt"
)

// records lists all of an owner's progression records across scopes.
func (cli *commandLine) records(ownerID string) error {
	ctx := context.Background()

	records, err := cli.progSvc.ListByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no records found")
		return nil
	}

	for _, rec := range records {
		scope := "global"
		if rec.Scope.Valid {
			scope = rec.Scope.String
		}
		status := "active"
		if !rec.IsActive {
			status = "inactive"
		}
		fmt.Printf("%s  scope=%-12s level=%-3d exp=%d/%d  %s\n",
			rec.ID, scope, rec.Level, rec.Experience, rec.NextLevelAt, status)
	}
	return nil
}
