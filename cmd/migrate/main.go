package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/angelmondragon/lankacart-backend/pkg/config"
	"github.com/angelmondragon/lankacart-backend/pkg/db"
	"github.com/angelmondragon/lankacart-backend/pkg/logger"
	"github.com/angelmondragon/lankacart-backend/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

// env carries what database-backed commands need.
type env struct {
	logg  *logger.Logger
	gorm  *gorm.DB
	sqlDB *sql.DB
	opts  options
}

var dbCommands = map[string]func(ctx context.Context, e env) error{
	"up":      goose,
	"down":    goose,
	"status":  goose,
	"version": toVersion,
	"seed-shipping": func(ctx context.Context, e env) error {
		created, err := seedShipping(ctx, e.gorm)
		if err == nil {
			e.logg.Info(e.logg.WithField(ctx, "zones_created", created), "migrate.seed_completed")
		}
		return err
	},
}

func goose(ctx context.Context, e env) error {
	return migrate.Run(ctx, e.sqlDB, e.opts.dir, e.opts.cmd, e.logg)
}

func toVersion(ctx context.Context, e env) error {
	if e.opts.version == "" {
		return errors.New("missing -version for version command")
	}
	return migrate.MigrateToVersion(ctx, e.sqlDB, e.opts.dir, e.opts.version, e.logg)
}

func main() {
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "up|down|status|version|create|validate|seed-shipping")
	flag.StringVar(&opts.dir, "dir", "", "migrations directory; empty uses the embedded set (create/validate default to "+migrate.DefaultDir+")")
	flag.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	// create and validate only touch the filesystem.
	diskDir := opts.dir
	if diskDir == "" {
		diskDir = migrate.DefaultDir
	}
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return errors.New("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(diskDir, opts.name)
		if err != nil {
			return err
		}
		fmt.Println("created migration:", path)
		return nil
	case "validate":
		if err := migrate.ValidateDir(diskDir); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		fmt.Println("migration validation passed")
		return nil
	}

	command, ok := dbCommands[opts.cmd]
	if !ok {
		return fmt.Errorf("unknown -cmd value %q", opts.cmd)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Env:         cfg.App.Env,
		Format:      cfg.App.LogFormat,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"cmd": opts.cmd, "dir": opts.dir})

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer client.Close()

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}

	if err := command(ctx, env{logg: logg, gorm: client.DB(), sqlDB: sqlDB, opts: opts}); err != nil {
		logg.Error(ctx, "migrate.command_failed", err)
		return err
	}
	logg.Info(ctx, "migrate.command_completed")
	return nil
}
