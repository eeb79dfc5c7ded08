package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/autoescrow-backend/pkg/config"
	"github.com/angelmondragon/autoescrow-backend/pkg/db"
	"github.com/angelmondragon/autoescrow-backend/pkg/logger"
	"github.com/angelmondragon/autoescrow-backend/pkg/migrate"
)

const usage = `usage: migrate -cmd <up|down|status|to|create|validate> [flags]

  up        apply every pending migration
  down      roll back the latest migration
  status    list migrations and when they were applied
  to        move to -version (YYYYMMDDHHMMSS), up or down
  create    write a new empty migration named -name into -dir
  validate  check file names and goose markers in -dir

Database commands read the migrations compiled into this binary unless -dir
is given.`

func main() {
	cmd := flag.String("cmd", "up", "migration command")
	dir := flag.String("dir", "", "migrations directory (default: embedded for db commands, "+migrate.DefaultDir+" for create/validate)")
	name := flag.String("name", "", "migration name for create")
	version := flag.String("version", "", "target version for to")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	switch *cmd {
	case "create":
		path, err := migrate.CreateSQLMigration(dirOrDefault(*dir), *name)
		exitOn("create migration", err)
		fmt.Println("created", path)
		return
	case "validate":
		exitOn("validate migrations", migrate.ValidateDir(dirOrDefault(*dir)))
		fmt.Println("migrations valid")
		return
	case "up", "down", "status", "to":
	default:
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	exitOn("load config", err)
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	exitOn("connect database", err)
	defer dbClient.Close()
	sqlDB, err := dbClient.DB().DB()
	exitOn("sql handle", err)

	migrator, err := migrate.NewMigrator(sqlDB, *dir, logg)
	exitOn("load migrations", err)

	switch *cmd {
	case "up":
		exitOn("migrate up", migrator.Up(ctx))
	case "down":
		exitOn("migrate down", migrator.Down(ctx))
	case "to":
		target, err := strconv.ParseInt(*version, 10, 64)
		if err != nil {
			exitOn("parse -version", fmt.Errorf("%q is not a YYYYMMDDHHMMSS version", *version))
		}
		exitOn("migrate to", migrator.To(ctx, target))
	case "status":
		statuses, err := migrator.Status(ctx)
		exitOn("migration status", err)
		printStatus(statuses)
	}
	logg.Info(ctx, "migrate finished")
}

func dirOrDefault(dir string) string {
	if dir == "" {
		return migrate.DefaultDir
	}
	return dir
}

func printStatus(statuses []migrate.Status) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tAPPLIED AT\tMIGRATION")
	for _, s := range statuses {
		applied := "pending"
		if s.Applied {
			applied = s.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", s.Version, applied, s.Name)
	}
	_ = tw.Flush()
}

func exitOn(step string, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", step, err)
	os.Exit(1)
}
