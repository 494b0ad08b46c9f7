// Package cli implements the authkeeper administration tool. It talks to
// the store directly, so it works before any administrator account exists.
package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

const usage = `usage: authkeeper-cli <command> [flags]

commands:
  create-user  -name NAME -email EMAIL [-role USER|ADMIN]
  help
`

type App struct {
	users  *services.UserService
	reader *bufio.Reader
	out    io.Writer
	close  func() error
}

// NewApp opens the configured store. In-memory storage is refused because
// nothing written by the tool would outlive it.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if c.StorageMode == config.StorageMemory {
		return nil, errors.New("create-user needs persistent storage, run with -m postgres")
	}

	logger := logging.NewJSONLogger(os.Stderr, c.LogLevel)

	backend, err := server.OpenBackend(ctx, c, logger)
	if err != nil {
		return nil, err
	}
	hasher, err := server.NewHasher(c)
	if err != nil {
		_ = backend.DB.Close()
		return nil, err
	}

	app := newApp(services.NewUserService(backend.Tx, backend.Repos, hasher, logger), os.Stdin, os.Stdout)
	app.close = backend.DB.Close
	return app, nil
}

func newApp(us *services.UserService, in io.Reader, out io.Writer) *App {
	return &App{
		users:  us,
		reader: bufio.NewReader(in),
		out:    out,
		close:  func() error { return nil },
	}
}

// Close releases the store.
func (a *App) Close() error { return a.close() }

// Run executes the command named by args[0].
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.out, usage)
		return errors.New("missing command")
	}

	switch args[0] {
	case "create-user":
		return a.createUser(ctx, args[1:])
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
		return nil
	default:
		fmt.Fprint(a.out, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func (a *App) createUser(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	fs.SetOutput(a.out)
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "email address")
	role := fs.String("role", string(models.RoleAdmin), "USER or ADMIN")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var err error
	if *name == "" {
		if *name, err = GetSimpleText(a.reader, "Name", a.out); err != nil {
			return err
		}
	}
	if *email == "" {
		if *email, err = GetSimpleText(a.reader, "Email", a.out); err != nil {
			return err
		}
	}

	password, err := GetPassword("Password", a.out)
	if err != nil {
		return err
	}
	if n := len(password); n < 8 || n > 128 {
		return errors.New("password must be 8 to 128 characters long")
	}
	confirm, err := GetPassword("Repeat password", a.out)
	if err != nil {
		return err
	}
	if confirm != password {
		return errors.New("passwords do not match")
	}

	u, err := a.users.Create(ctx, strings.TrimSpace(*name), *email, password, models.Role(strings.ToUpper(*role)))
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "created %s user %s (%s)\n", u.Role, u.Email, u.ID)
	return nil
}
