package main

import (
	"context"
	"fmt"

	"github.com/volatiletech/null/v8"
)

// award applies a manual experience delta; used for backfills and corrections.
func (cli *commandLine) award(ownerID, scope string, delta int) error {
	ctx := context.Background()

	nullScope := null.String{}
	if scope != "" {
		nullScope = null.StringFrom(scope)
	}

	res, err := cli.progSvc.AddExperience(ctx, ownerID, nullScope, delta)
	if err != nil {
		return err
	}

	if res.LeveledUp {
		fmt.Printf("awarded %d exp: level %d -> %d (%d/%d exp)\n",
			delta, res.PreviousLevel, res.Record.Level, res.Record.Experience, res.Record.NextLevelAt)
	} else {
		fmt.Printf("awarded %d exp: level %d (%d/%d exp)\n",
			delta, res.Record.Level, res.Record.Experience, res.Record.NextLevelAt)
	}
	return nil
}
