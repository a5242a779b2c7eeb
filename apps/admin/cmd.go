package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/darasa/core/noc"
	"github.com/trezcool/darasa/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db     *sql.DB
	usrSvc user.Service
	nocEng noc.Engine
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate up|down|status|version [args]            - run database migrations")
	fmt.Println("  createadmin -email EMAIL                         - create an admin account (password prompted)")
	fmt.Println("  backfill                                         - create missing compliance records for all enrolled students")
	fmt.Println("  recompute -subject SUBJECT_ID -division DIV_ID   - re-evaluate NOC eligibility for a scope")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	createAdminCmd := flag.NewFlagSet("createadmin", flag.ExitOnError)
	createAdminEmail := createAdminCmd.String("email", "", "The admin's email. The password will be prompted next.")

	recomputeCmd := flag.NewFlagSet("recompute", flag.ExitOnError)
	recomputeSubject := recomputeCmd.Int("subject", 0, "The subject ID of the scope.")
	recomputeDivision := recomputeCmd.Int("division", 0, "The division ID of the scope.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "createadmin":
		if err := createAdminCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *createAdminEmail == "" {
			createAdminCmd.Usage()
			return errHelp
		}
		fmt.Print("Enter password:")
		pwd, err := readPasswordFunc(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			createAdminCmd.Usage()
			return errHelp
		}
		return cli.createAdmin(*createAdminEmail, string(pwd))
	case "backfill":
		return cli.backfill()
	case "recompute":
		if err := recomputeCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *recomputeSubject == 0 || *recomputeDivision == 0 {
			recomputeCmd.Usage()
			return errHelp
		}
		return cli.recompute(*recomputeSubject, *recomputeDivision)
	default:
		cli.printUsage()
		return errHelp
	}
}
