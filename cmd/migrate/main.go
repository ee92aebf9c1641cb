package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

type options struct {
	dir     string
	name    string
	version string
}

// offline commands never open a database connection.
var offline = map[string]func(options) error{
	"create": func(o options) error {
		if o.name == "" {
			return fmt.Errorf("-name is required for create")
		}
		path, err := migrate.CreateSQLMigration(o.dir, o.name)
		if err != nil {
			return err
		}
		fmt.Println("created migration:", path)
		return nil
	},
	"validate": func(o options) error {
		if err := migrate.ValidateDir(o.dir); err != nil {
			return err
		}
		fmt.Println("migrations valid:", o.dir)
		return nil
	},
}

var online = map[string]func(context.Context, *migrate.Runner, options) error{
	"up": func(ctx context.Context, r *migrate.Runner, _ options) error {
		applied, err := r.Up(ctx)
		if err == nil && applied == 0 {
			fmt.Println("schema already current")
		}
		return err
	},
	"down": func(ctx context.Context, r *migrate.Runner, _ options) error {
		return r.Down(ctx)
	},
	"status": func(ctx context.Context, r *migrate.Runner, _ options) error {
		return r.Status(ctx)
	},
	"version": func(ctx context.Context, r *migrate.Runner, o options) error {
		if o.version == "" {
			return fmt.Errorf("-version is required for version")
		}
		return r.To(ctx, o.version)
	},
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "one of: "+strings.Join(commandNames(), "|"))
	opts := options{}
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&opts.name, "name", "", "migration name (create)")
	flag.StringVar(&opts.version, "version", "", "target version YYYYMMDDHHMMSS (version)")
	flag.Parse()

	if run, ok := offline[*cmd]; ok {
		exitOnError(context.Background(), logg, *cmd, run(opts))
		return
	}
	run, ok := online[*cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown -cmd %q (want %s)\n", *cmd, strings.Join(commandNames(), "|"))
		os.Exit(2)
	}

	cfg, err := config.Load()
	exitOnError(context.Background(), logg, "load config", err)
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": *cmd, "dir": opts.dir})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	exitOnError(ctx, logg, "connect database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	exitOnError(ctx, logg, "sql handle", err)
	runner, err := migrate.NewRunner(sqlDB, opts.dir, os.Stdout)
	exitOnError(ctx, logg, "goose provider", err)

	logg.Info(ctx, "running migration command")
	exitOnError(ctx, logg, *cmd, run(ctx, runner, opts))
}

func commandNames() []string {
	names := make([]string, 0, len(offline)+len(online))
	for name := range offline {
		names = append(names, name)
	}
	for name := range online {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func exitOnError(ctx context.Context, logg *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("migrate %s failed", step), err)
	os.Exit(1)
}
