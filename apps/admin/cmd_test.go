package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hcanning/homeroom/core"
	"github.com/hcanning/homeroom/core/auth"
	"github.com/hcanning/homeroom/core/school"
	sqlxrepos "github.com/hcanning/homeroom/storage/database/sqlx"
	"github.com/hcanning/homeroom/storage/securefile"
	"github.com/hcanning/homeroom/storage/storagetest"
)

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	repo, err := securefile.Open(t.TempDir())
	require.NoError(t, err)

	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())
	hasher := auth.NewHasher(auth.HasherParams{N: 1024, R: 8, P: 1, SaltLen: 16, KeyLen: 32})

	var out bytes.Buffer
	return &commandLine{
		svc:     school.NewService(repo, hasher, validate),
		dataDir: t.TempDir(),
		out:     &out,
	}, &out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func checkRunErr(t *testing.T, tt cliTest, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		if err != tt.wantErr {
			t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
		}
	case tt.wantErrStr != "":
		if err == nil || err.Error() != tt.wantErrStr {
			t.Errorf("cli.run() error = %v, wantErrStr %s", err, tt.wantErrStr)
		}
	case err != nil:
		t.Errorf("cli.run() unexpected error = %v", err)
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	t.Run("no database", func(t *testing.T) {
		assert.Equal(t, errNoDatabase, cli.run([]string{"admin", "migrate", "up"}))
	})

	cli.db = new(sql.DB) // never touched by the mock below
	origRun := gooseRunFunc
	defer func() { gooseRunFunc = origRun }()
	gooseRunFunc = func(command string, db *sql.DB, dir string, args ...string) error {
		if dir != "migrations" {
			return fmt.Errorf("unexpected dir %q", dir)
		}
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "1"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			checkRunErr(t, tt, cli.run(args))
		})
	}
}

func Test_commandLine_resetAdmin(t *testing.T) {
	cli, _ := setup(t)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetadmin"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetadmin", "-email", "admin@x.com"}, wantErr: errHelp},
		{name: "set", args: []string{"resetadmin", "-email", "admin@x.com"}, extra: extra{pwd: "p1"}},
		{name: "overwrite", args: []string{"resetadmin", "-email", "Boss@x.com"}, extra: extra{pwd: "p2"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			checkRunErr(t, tt, cli.run(args))
		})
	}

	ctx := context.Background()
	_, err := cli.svc.Login(ctx, school.Login{Role: auth.RoleSuperadmin, Email: "admin@x.com", Password: "p1"})
	assert.Equal(t, school.ErrInvalidCredentials, err)
	subject, err := cli.svc.Login(ctx, school.Login{Role: auth.RoleSuperadmin, Email: "boss@x.com", Password: "p2"})
	require.NoError(t, err)
	assert.Equal(t, auth.AdminSubject, subject)
}

func Test_commandLine_addTeacher(t *testing.T) {
	cli, out := setup(t)
	readPasswordFunc = func(fd int) ([]byte, error) { return []byte("pw"), nil }

	tests := []cliTest{
		{name: "no name", args: []string{"addteacher", "-email", "t@x.com"}, wantErr: errHelp},
		{name: "created", args: []string{"addteacher", "-email", "T@x.com", "-name", "Ada"}},
		{name: "duplicate", args: []string{"addteacher", "-email", "t@x.com", "-name", "Ada"}, wantErrStr: school.ErrTeacherExists.Error()},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		t.Run(tt.name, func(t *testing.T) {
			checkRunErr(t, tt, cli.run(args))
		})
	}

	// usage text may precede the printed teacher
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	var printed school.Teacher
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &printed))
	assert.Equal(t, "t@x.com", printed.Email)
	assert.Equal(t, "Ada", printed.Name)

	_, err := cli.svc.Login(context.Background(), school.Login{Role: auth.RoleTeacher, Email: "t@x.com", Password: "pw"})
	assert.NoError(t, err)
}

func Test_commandLine_migratesBeforeWrites(t *testing.T) {
	cli, _ := setup(t)
	cli.db = new(sql.DB) // never touched by the mock below
	readPasswordFunc = func(fd int) ([]byte, error) { return []byte("pw"), nil }

	var ran []string
	var migrateErr error
	origRun := gooseRunFunc
	defer func() { gooseRunFunc = origRun }()
	gooseRunFunc = func(command string, db *sql.DB, dir string, args ...string) error {
		ran = append(ran, command+" "+dir)
		return migrateErr
	}

	require.NoError(t, cli.run([]string{"admin", "resetadmin", "-email", "admin@x.com"}))
	require.NoError(t, cli.run([]string{"admin", "addteacher", "-email", "t@x.com", "-name", "Ada"}))
	assert.Equal(t, []string{"up migrations", "up migrations"}, ran)

	migrateErr = errors.New("relation does not exist")
	err := cli.run([]string{"admin", "addteacher", "-email", "u@x.com", "-name", "Bob"})
	assert.Equal(t, migrateErr, err)
	_, err = cli.svc.Login(context.Background(), school.Login{Role: auth.RoleTeacher, Email: "u@x.com", Password: "pw"})
	assert.Equal(t, school.ErrInvalidCredentials, err)
}

type importerMock struct {
	snaps []school.Snapshot
}

func (m *importerMock) Import(_ context.Context, snap school.Snapshot) (sqlxrepos.ImportResult, error) {
	m.snaps = append(m.snaps, snap)
	return sqlxrepos.ImportResult{AdminImported: snap.Admin != nil, Teachers: len(snap.Teachers), Students: len(snap.Students)}, nil
}

func Test_commandLine_importLegacy(t *testing.T) {
	cli, out := setup(t)

	t.Run("no database", func(t *testing.T) {
		assert.Equal(t, errNoDatabase, cli.run([]string{"admin", "importlegacy"}))
	})

	mock := &importerMock{}
	cli.importer = mock

	t.Run("nothing to import", func(t *testing.T) {
		out.Reset()
		require.NoError(t, cli.run([]string{"admin", "importlegacy"}))
		assert.JSONEq(t, `{"imported":false,"adminImported":false,"teachers":0,"students":0,"attendance":0}`, out.String())
		assert.Empty(t, mock.snaps)
	})

	t.Run("legacy data", func(t *testing.T) {
		dir := t.TempDir()
		legacy, err := securefile.Open(dir)
		require.NoError(t, err)
		teacher := storagetest.CreateTeacher(t, legacy, "a@x.com", "Ada")
		storagetest.CreateStudent(t, legacy, teacher.ID, "Sam")
		storagetest.CreateStudent(t, legacy, teacher.ID, "Lee")

		out.Reset()
		require.NoError(t, cli.run([]string{"admin", "importlegacy", "-dir", dir}))
		assert.JSONEq(t, `{"imported":true,"adminImported":false,"teachers":1,"students":2,"attendance":0}`, out.String())
		require.Len(t, mock.snaps, 1)

		// already marked imported, the command still runs
		done, err := securefile.Imported(dir)
		require.NoError(t, err)
		require.True(t, done)
		out.Reset()
		require.NoError(t, cli.run([]string{"admin", "importlegacy", "-dir", dir}))
		assert.JSONEq(t, `{"imported":true,"adminImported":false,"teachers":1,"students":2,"attendance":0}`, out.String())
		assert.Len(t, mock.snaps, 2)
	})
}
