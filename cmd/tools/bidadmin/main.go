// cmd/tools/bidadmin/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codr1/leaguebids/internal/api/auth"
	"github.com/codr1/leaguebids/internal/auction"
	"github.com/codr1/leaguebids/internal/config"
	"github.com/codr1/leaguebids/internal/db"
)

const usage = `usage: bidadmin <command> [flags]

commands:
  migrate        -db PATH -migrations DIR -command up|down|version
  reset-timers   -config PATH [-window 10h]
  hash-password  -password SECRET
  create-team    -config PATH -name NAME
  create-player  -config PATH -name NAME [-position POS] [-team ID -salary N]
  create-user    -config PATH -email EMAIL -password SECRET [-name NAME] [-role manager|admin] [-team ID]
`

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "migrate":
		err = runMigrate(os.Args[2:])
	case "reset-timers":
		err = runResetTimers(os.Args[2:], os.Stdout)
	case "hash-password":
		err = runHashPassword(os.Args[2:], os.Stdout)
	case "create-team":
		err = runCreateTeam(os.Args[2:], os.Stdout)
	case "create-player":
		err = runCreatePlayer(os.Args[2:], os.Stdout)
	case "create-user":
		err = runCreateUser(os.Args[2:], os.Stdout)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", os.Args[1]).Msg("Command failed")
	}
}

func runMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	var (
		dbPath         = fs.String("db", "", "Path to SQLite database")
		migrationsPath = fs.String("migrations", "internal/db/migrations", "Path to migrations directory")
		command        = fs.String("command", "", "Command to run (up, down, version)")
	)
	fs.Parse(args)

	if *dbPath == "" || *command == "" {
		fs.Usage()
		return errors.New("-db and -command are required")
	}

	// Convert paths to absolute
	absDB, err := filepath.Abs(*dbPath)
	if err != nil {
		return fmt.Errorf("invalid database path: %w", err)
	}
	absMigrations, err := filepath.Abs(*migrationsPath)
	if err != nil {
		return fmt.Errorf("invalid migrations path: %w", err)
	}
	if _, err := os.Stat(absMigrations); os.IsNotExist(err) {
		return fmt.Errorf("migrations directory does not exist: %s", absMigrations)
	}
	if err := os.MkdirAll(filepath.Dir(absDB), 0755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}

	m, err := migrate.New("file://"+absMigrations, "sqlite3://"+absDB)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	switch *command {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("run migrations: %w", err)
		}
		log.Info().Msg("Successfully ran migrations up")
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("rollback migrations: %w", err)
		}
		log.Info().Msg("Successfully ran migrations down")
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return fmt.Errorf("get version: %w", err)
		}
		log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Current migration version")
	default:
		return fmt.Errorf("unknown migrate command: %s", *command)
	}
	return nil
}

// runResetTimers rewrites expiries in the database. A running server discards
// its stale timers and its sweep job settles on the new expiries.
func runResetTimers(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("reset-timers", flag.ExitOnError)
	var (
		configPath = fs.String("config", "config/app.yaml", "Path to the YAML configuration file")
		window     = fs.Duration("window", 10*time.Hour, "Time remaining on every open auction")
	)
	fs.Parse(args)

	cfg, database, err := openDB(*configPath)
	if err != nil {
		return err
	}
	defer database.Close()

	engine := auction.NewEngine(database, cfg.Rules(), auction.WithLogger(log.Logger))
	defer engine.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n, err := engine.ResetTimers(log.Logger.WithContext(ctx), *window)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "reset %d auctions to %s\n", n, *window)
	return nil
}

func runHashPassword(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("hash-password", flag.ExitOnError)
	password := fs.String("password", "", "Plaintext password to hash")
	fs.Parse(args)

	if *password == "" {
		return errors.New("-password is required")
	}
	hash, err := auth.HashPassword(*password)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, hash)
	return nil
}

func runCreateTeam(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("create-team", flag.ExitOnError)
	var (
		configPath = fs.String("config", "config/app.yaml", "Path to the YAML configuration file")
		name       = fs.String("name", "", "Team name")
	)
	fs.Parse(args)

	if *name == "" {
		return errors.New("-name is required")
	}
	_, database, err := openDB(*configPath)
	if err != nil {
		return err
	}
	defer database.Close()

	team, err := database.CreateTeam(context.Background(), *name)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, team.ID)
	return nil
}

func runCreatePlayer(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("create-player", flag.ExitOnError)
	var (
		configPath = fs.String("config", "config/app.yaml", "Path to the YAML configuration file")
		name       = fs.String("name", "", "Player name")
		position   = fs.String("position", "", "Roster position")
		teamID     = fs.String("team", "", "Rostered team id; empty for a free agent")
		salary     = fs.Int64("salary", 0, "Salary in dollars for a rostered player")
	)
	fs.Parse(args)

	if *name == "" {
		return errors.New("-name is required")
	}
	_, database, err := openDB(*configPath)
	if err != nil {
		return err
	}
	defer database.Close()

	params := db.CreatePlayerParams{Name: *name, Position: *position, Salary: *salary}
	if *teamID != "" {
		params.TeamID = teamID
	}
	player, err := database.CreatePlayer(context.Background(), params)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, player.ID)
	return nil
}

func runCreateUser(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("create-user", flag.ExitOnError)
	var (
		configPath = fs.String("config", "config/app.yaml", "Path to the YAML configuration file")
		email      = fs.String("email", "", "Login email")
		password   = fs.String("password", "", "Plaintext password")
		name       = fs.String("name", "", "Display name")
		role       = fs.String("role", "manager", "Role (manager or admin)")
		teamID     = fs.String("team", "", "Managed team id")
	)
	fs.Parse(args)

	if *email == "" || *password == "" {
		return errors.New("-email and -password are required")
	}
	hash, err := auth.HashPassword(*password)
	if err != nil {
		return err
	}
	_, database, err := openDB(*configPath)
	if err != nil {
		return err
	}
	defer database.Close()

	params := db.CreateUserParams{Email: *email, DisplayName: *name, PasswordHash: hash, Role: *role}
	if *teamID != "" {
		params.TeamID = teamID
	}
	user, err := database.CreateUser(context.Background(), params)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, user.ID)
	return nil
}

func openDB(configPath string) (*config.Config, *db.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	database, err := db.NewFromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, database, nil
}
