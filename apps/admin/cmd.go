package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"syscall"

	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/examresult"
	"github.com/trezcool/chuo/core/record"
	"github.com/trezcool/chuo/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf     *core.Config
	db       *sql.DB // postgres only
	usrRepo  user.Repository
	usrSvc   *user.Service
	validate *validator.Validate
	records  record.Store
	courses  examresult.CourseSource // may be nil
	mailer   core.EmailService
	logger   core.Logger
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  adduser -username USERNAME -email EMAIL [-name NAME] [-phone PHONE] [-roles ROLES] [-admin] - add or update a user")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Fprintln(cli.out, "  sweep [-kind KIND] [-dry-run] [-notify] - remove duplicated records")
	fmt.Fprintln(cli.out, "  backfill [-file PATH] [-notify] - create the exam results of legacy course attempts")
}

func (cli *commandLine) promptPassword(fs *flag.FlagSet) (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		fs.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserName := addUserCmd.String("name", "", "The user's full name. Defaults to the username.")
	addUserPhone := addUserCmd.String("phone", "", "The user's phone number.")
	addUserRoles := addUserCmd.String("roles", "", "Comma separated roles, e.g. teacher:,student:")
	addUserAdmin := addUserCmd.Bool("admin", false, "Give every role to the user.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	sweepCmd := flag.NewFlagSet("sweep", flag.ContinueOnError)
	sweepKind := sweepCmd.String("kind", string(record.KindExamResult), "The kind of records to deduplicate.")
	sweepDryRun := sweepCmd.Bool("dry-run", false, "Report the duplicates without deleting them.")
	sweepNotify := sweepCmd.Bool("notify", false, "Email the report to the ops address.")

	backfillCmd := flag.NewFlagSet("backfill", flag.ContinueOnError)
	backfillFile := backfillCmd.String("file", "", "A JSON array of legacy courses. Defaults to the courses collection (mongo engine).")
	backfillNotify := backfillCmd.Bool("notify", false, "Email the report to the ops address.")

	for _, fs := range []*flag.FlagSet{addUserCmd, resetPasswordCmd, sweepCmd, backfillCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" && *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(addUserCmd)
		if err != nil {
			return err
		}
		var roles []string
		if *addUserRoles != "" {
			roles = strings.Split(*addUserRoles, ",")
		}
		return cli.addUser(user.NewUser{
			Name:            *addUserName,
			Username:        *addUserUname,
			Email:           *addUserEmail,
			Phone:           *addUserPhone,
			Password:        pwd,
			PasswordConfirm: pwd,
			Roles:           roles,
		}, *addUserAdmin)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(resetPasswordCmd)
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "sweep":
		if err := sweepCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.sweep(record.Kind(*sweepKind), *sweepDryRun, *sweepNotify)

	case "backfill":
		if err := backfillCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.backfill(*backfillFile, *backfillNotify)

	default:
		cli.printUsage()
		return errHelp
	}
}
