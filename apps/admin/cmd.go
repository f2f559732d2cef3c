package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/trezcool/proofmate/core"
	"github.com/trezcool/proofmate/core/assignment"
	"github.com/trezcool/proofmate/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db         *sql.DB // nil with the in-memory user DB
	usrSvc     user.Service
	asgSvc     assignment.Service
	mailSvc    core.EmailService
	validate   *validator.Validate
	translator ut.Translator
	out        io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  adduser -email EMAIL [-name NAME] [-role ROLE] [-institution INSTITUTION] - create or update a user")
	fmt.Fprintln(cli.out, "  resetpassword -email EMAIL - reset user's password")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS...] - run a goose command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  syncdata [-reset] [-testdata] - reconcile the assignments store")
	fmt.Fprintln(cli.out, "  exportcsv [-o FILE] [-email ADDRS [-cc ADDRS] [-bcc ADDRS]] - export the assignments report")
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fset := flag.NewFlagSet(name, flag.ContinueOnError)
	fset.SetOutput(cli.out)
	return fset
}

// promptPassword reads a password from the terminal without echoing it.
func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := cli.newFlagSet("adduser")
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserName := addUserCmd.String("name", "", "The user's full name. Defaults to the email's local part.")
	addUserRole := addUserCmd.String("role", user.RoleAdmin, "One of: "+strings.Join(user.AllRoles, ", "))
	addUserInst := addUserCmd.String("institution", "", "Required for teachers.")

	resetPasswordCmd := cli.newFlagSet("resetpassword")
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	syncDataCmd := cli.newFlagSet("syncdata")
	syncDataReset := syncDataCmd.Bool("reset", false, "Replace the stored data with the demo data.")
	syncDataTest := syncDataCmd.Bool("testdata", false, "Make sure at least one assignment and one submission exist.")

	exportCmd := cli.newFlagSet("exportcsv")
	exportOut := exportCmd.String("o", "-", "Output file, \"-\" for stdout.")
	exportTo := exportCmd.String("email", "", "Comma separated addresses to email the report to.")
	exportCc := exportCmd.String("cc", "", "Comma separated addresses to copy.")
	exportBcc := exportCmd.String("bcc", "", "Comma separated addresses to blind copy.")

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserEmail == "" {
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
		return cli.addUser(*addUserName, *addUserEmail, *addUserRole, *addUserInst, pwd)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
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
		return cli.resetPassword(*resetPasswordEmail, pwd)

	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "syncdata":
		if err := syncDataCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.syncData(*syncDataReset, *syncDataTest)

	case "exportcsv":
		if err := exportCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.exportCSV(exportOptions{path: *exportOut, to: *exportTo, cc: *exportCc, bcc: *exportBcc})

	default:
		cli.printUsage()
		return errHelp
	}
}

// explain flattens validation errors into a single readable error.
func (cli *commandLine) explain(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	fldErrs := core.TranslateErrors(verrs, cli.translator)
	msgs := make([]string, 0, len(fldErrs))
	for fld, msg := range fldErrs {
		msgs = append(msgs, fld+": "+msg)
	}
	sort.Strings(msgs)
	return errors.New(strings.Join(msgs, "; "))
}
