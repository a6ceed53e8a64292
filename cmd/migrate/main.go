package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gatehouse.dev/internal/auth"
	"gatehouse.dev/internal/config"
	"gatehouse.dev/internal/migrate"
	"gatehouse.dev/internal/obs"
	"gatehouse.dev/internal/seed"
	"gatehouse.dev/internal/store/pg"
)

func main() {
	cfg, err := config.Read()
	if err != nil {
		obs.Logger().Fatal().Err(err).Msg("load config")
	}
	obs.Init(obs.LogConfig{Level: cfg.Log.Level, Format: "console"})
	log := obs.Logger()

	dsn := flag.String("dsn", cfg.Database.DSN, "PostgreSQL DSN (default from GATEHOUSE_DATABASE_DSN)")
	table := flag.String("table", "", "migrations bookkeeping table")
	timeout := flag.Duration("timeout", 60*time.Second, "overall timeout")
	flag.Parse()

	if *dsn == "" {
		log.Fatal().Msg("missing DSN: provide via -dsn or GATEHOUSE_DATABASE_DSN")
	}
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: migrate [flags] up|down|status|seed")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := pg.Open(*dsn, pg.PoolConfig{MaxOpenConns: 2, MaxIdleConns: 2})
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer store.Close()

	mgr := migrate.NewManager(store.DB(), pg.Migrations(), migrate.WithMigrationsTable(*table))

	cmd := flag.Arg(0)
	switch cmd {
	case "up":
		var applied []string
		applied, err = mgr.Up(ctx)
		if err == nil && len(applied) == 0 {
			log.Info().Msg("schema is up to date")
		}
	case "down":
		var name string
		name, err = mgr.Down(ctx)
		if errors.Is(err, migrate.ErrNothingToRollBack) {
			log.Info().Msg("nothing to roll back")
			err = nil
		} else if err == nil {
			log.Info().Str("migration", name).Msg("rolled back")
		}
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		for _, item := range history {
			fmt.Println(item)
		}
	case "seed":
		_, err = seed.Run(ctx, store, auth.BcryptHasher{Cost: cfg.Auth.BcryptCost})
		if err == nil {
			for _, acc := range seed.Accounts {
				fmt.Printf("%-8s %-22s %s\n", acc.Role, acc.Email, acc.Password)
			}
		}
	default:
		log.Fatal().Str("command", cmd).Msg("unknown command")
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", cmd).Msg("migrate failed")
	}
}
