package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/hcanning/homeroom/core/school"
	"github.com/hcanning/homeroom/storage"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp       = errors.New("help provided")
	errNoDatabase = errors.New("no database configured: set DATABASE_URL")
)

type commandLine struct {
	db       *sql.DB // nil with the file store
	svc      *school.Service
	importer storage.Importer // nil with the file store
	dataDir  string
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  resetadmin -email EMAIL - set the admin credentials (password is prompted)")
	fmt.Fprintln(cli.out, "  addteacher -email EMAIL -name NAME - create a teacher account (password is prompted)")
	fmt.Fprintln(cli.out, "  importlegacy [-dir DIR] - import the encrypted file store into the database")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose migration command against the database")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	resetAdminCmd := flag.NewFlagSet("resetadmin", flag.ContinueOnError)
	resetAdminCmd.SetOutput(cli.out)
	resetAdminEmail := resetAdminCmd.String("email", "", "The admin email. The password will be prompted next.")

	addTeacherCmd := flag.NewFlagSet("addteacher", flag.ContinueOnError)
	addTeacherCmd.SetOutput(cli.out)
	addTeacherEmail := addTeacherCmd.String("email", "", "The teacher email. The password will be prompted next.")
	addTeacherName := addTeacherCmd.String("name", "", "The teacher display name.")

	importCmd := flag.NewFlagSet("importlegacy", flag.ContinueOnError)
	importCmd.SetOutput(cli.out)
	importDir := importCmd.String("dir", cli.dataDir, "The directory holding secure-db.json and secure-key.json.")

	switch args[1] {
	case "resetadmin":
		if err := resetAdminCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetAdminEmail == "" {
			resetAdminCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetAdminCmd.Usage()
			return errHelp
		}
		if err = cli.ensureSchema(); err != nil {
			return err
		}
		return cli.resetAdmin(*resetAdminEmail, pwd)
	case "addteacher":
		if err := addTeacherCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addTeacherEmail == "" || *addTeacherName == "" {
			addTeacherCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addTeacherCmd.Usage()
			return errHelp
		}
		if err = cli.ensureSchema(); err != nil {
			return err
		}
		return cli.addTeacher(*addTeacherEmail, *addTeacherName, pwd)
	case "importlegacy":
		if err := importCmd.Parse(args[2:]); err != nil {
			return err
		}
		if err := cli.ensureSchema(); err != nil {
			return err
		}
		return cli.importLegacy(*importDir)
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	default:
		cli.printUsage()
		return errHelp
	}
}

// readPassword prompts on stderr so that stdout only carries command output.
func (cli *commandLine) readPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
