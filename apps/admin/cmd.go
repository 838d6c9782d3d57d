package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/finance"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/school"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db        *sqlx.DB
	usrRepo   user.Repository
	schoolSvc *school.Service
	finSvc    *finance.Service
	logger    core.Logger
	out       io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, up-by-one, up-to, down, down-to, redo, reset, status, version, fix)")
	fmt.Fprintln(cli.out, "  addinstitution -name NAME [-currency PEN] - create an institution and print its ID")
	fmt.Fprintln(cli.out, "  adduser -institution ID -username USERNAME [-email EMAIL] [-name NAME] [-owner] - create or update an admin user")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Fprintln(cli.out, "  applymora [-institution ID] [-date YYYY-MM-DD] - accrue the mora of every (or one) institution")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addInstCmd := flag.NewFlagSet("addinstitution", flag.ContinueOnError)
	addInstName := addInstCmd.String("name", "", "The institution's name.")
	addInstCurrency := addInstCmd.String("currency", "", "ISO 4217 currency code of the institution.")

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserInst := addUserCmd.String("institution", "", "The institution ID of the user.")
	addUserUname := addUserCmd.String("username", "", "The user's username. The password will be prompted next.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserName := addUserCmd.String("name", "", "The user's full name (defaults to the username).")
	addUserOwner := addUserCmd.Bool("owner", false, "Give the owner role instead of the admin role.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	applyMoraCmd := flag.NewFlagSet("applymora", flag.ContinueOnError)
	applyMoraInst := applyMoraCmd.String("institution", "", "Only accrue the mora of this institution.")
	applyMoraDate := applyMoraCmd.String("date", "", "Accrue as of this date (defaults to today).")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "addinstitution":
		if err := addInstCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addInstName == "" {
			addInstCmd.Usage()
			return errHelp
		}
		return cli.addInstitution(*addInstName, *addInstCurrency)

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserInst == "" || *addUserUname == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserInst, *addUserName, *addUserUname, *addUserEmail, pwd, *addUserOwner)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "applymora":
		if err := applyMoraCmd.Parse(args[2:]); err != nil {
			return err
		}
		asOf := core.Today()
		if *applyMoraDate != "" {
			d, err := core.ParseDate(*applyMoraDate)
			if err != nil {
				return err
			}
			asOf = d
		}
		return cli.applyMora(*applyMoraInst, asOf)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
