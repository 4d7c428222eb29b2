package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/ioutil"
	"log"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/storage/database"
	inmemdb "github.com/trezcool/darasa/storage/database/inmem"
)

func setupCLI() *commandLine {
	logger = log.New(ioutil.Discard, "", 0)
	db := inmemdb.Open()
	return &commandLine{
		db:          &database.DB{DB: &sqlx.DB{}},
		usrRepo:     inmemdb.NewUserRepository(db),
		subjectRepo: inmemdb.NewCatalogRepository(db),
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func runCLITests(t *testing.T, cli *commandLine, tests []cliTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(append([]string{"admin"}, tt.args...))
			switch {
			case tt.wantErr != nil:
				if err != tt.wantErr {
					t.Errorf("run() err = %v; want %v", err, tt.wantErr)
				}
			case tt.wantErrStr != "":
				if err == nil || !strings.Contains(err.Error(), tt.wantErrStr) {
					t.Errorf("run() err = %v; want %q", err, tt.wantErrStr)
				}
			default:
				if err != nil {
					t.Errorf("run() failed: %v", err)
				}
			}
		})
	}
}

func Test_commandLine_run(t *testing.T) {
	cli := setupCLI()
	runCLITests(t, cli, []cliTest{
		{name: "no command", args: nil, wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
	})
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setupCLI()

	gooseRunFunc = func(command string, db *sql.DB, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s requires a VERSION argument", command)
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	runCLITests(t, cli, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to requires a VERSION argument"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
	})
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setupCLI()
	ctx := context.Background()

	readPasswordFunc = func(fd int) ([]byte, error) { return []byte("s3cr3t"), nil }

	runCLITests(t, cli, []cliTest{
		{name: "missing username", args: []string{"adduser", "-email", "x@test.cd"}, wantErr: errHelp},
		{name: "missing email", args: []string{"adduser", "-username", "x"}, wantErr: errHelp},
		{name: "bad role", args: []string{"adduser", "-username", "x", "-email", "x@test.cd", "-role", "boss"}, wantErrStr: `unknown role "boss"`},
		{name: "default role is admin", args: []string{"adduser", "-username", "boss", "-email", "boss@test.cd"}},
		{name: "teacher", args: []string{"adduser", "-username", "teach", "-email", "teach@test.cd", "-role", "teacher"}},
	})

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: "boss"})
	if err != nil {
		t.Fatalf("GetUser() failed: %v", err)
	}
	if usr.Role != user.RoleAdmin {
		t.Errorf("Role = %q; want %q", usr.Role, user.RoleAdmin)
	}
	if usr.IsActive == nil || !*usr.IsActive {
		t.Error("user not active")
	}
	if err = usr.CheckPassword("s3cr3t"); err != nil {
		t.Errorf("CheckPassword() failed: %v", err)
	}

	// re-running updates instead of duplicating
	runCLITests(t, cli, []cliTest{
		{name: "update existing", args: []string{"adduser", "-username", "teach", "-email", "teach@test.cd", "-role", "admin"}},
	})
	usr, err = cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: "teach"})
	if err != nil {
		t.Fatalf("GetUser() failed: %v", err)
	}
	if usr.Role != user.RoleAdmin {
		t.Errorf("Role = %q; want %q", usr.Role, user.RoleAdmin)
	}

	// empty password aborts
	readPasswordFunc = func(fd int) ([]byte, error) { return nil, nil }
	runCLITests(t, cli, []cliTest{
		{name: "empty password", args: []string{"adduser", "-username", "y", "-email", "y@test.cd"}, wantErr: errHelp},
	})
}

func Test_commandLine_seedSubjects(t *testing.T) {
	cli := setupCLI()
	ctx := context.Background()

	runCLITests(t, cli, []cliTest{
		{name: "seed", args: []string{"seedsubjects"}},
		{name: "reseed is idempotent", args: []string{"seedsubjects"}},
	})

	subjects, err := cli.subjectRepo.QuerySubjects(ctx, false)
	if err != nil {
		t.Fatalf("QuerySubjects() failed: %v", err)
	}
	if len(subjects) != len(defaultSubjects) {
		t.Errorf("subjects = %d; want %d", len(subjects), len(defaultSubjects))
	}
}
