package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"

	"github.com/trezcool/ngazi/core/progression"
	"github.com/trezcool/ngazi/core/student"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db      *sql.DB
	stdSvc  *student.Service
	progSvc *progression.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [args] - run a goose migration command (up, down, status, ...)")
	fmt.Println("  award -owner ID [-scope SCOPE] -exp N - apply a manual experience award")
	fmt.Println("  records -owner ID - list an owner's progression records")
	fmt.Println("  seeddemo - create demo students with sample progression")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	awardCmd := flag.NewFlagSet("award", flag.ExitOnError)
	awardOwner := awardCmd.String("owner", "", "The owner (student) ID.")
	awardScope := awardCmd.String("scope", "", "Optional scope (e.g. a class ID); empty for global progression.")
	awardExp := awardCmd.Int("exp", -1, "The experience delta to award (>= 0).")

	recordsCmd := flag.NewFlagSet("records", flag.ExitOnError)
	recordsOwner := recordsCmd.String("owner", "", "The owner (student) ID.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "award":
		if err := awardCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *awardOwner == "" || *awardExp < 0 {
			awardCmd.Usage()
			return errHelp
		}
		return cli.award(*awardOwner, *awardScope, *awardExp)
	case "records":
		if err := recordsCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *recordsOwner == "" {
			recordsCmd.Usage()
			return errHelp
		}
		return cli.records(*recordsOwner)
	case "seeddemo":
		return cli.seedDemo()
	default:
		cli.printUsage()
		return errHelp
	}
}
