package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/rofiliofernandes/somudai/internal/config"
	"github.com/rofiliofernandes/somudai/internal/database"
	"github.com/rofiliofernandes/somudai/internal/logger"
	"github.com/rofiliofernandes/somudai/internal/seed"
	"go.uber.org/zap"
)

func main() {
	command := "dev"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "dev", "test", "clean":
	default:
		fmt.Println("Usage: seed [dev|test|clean]")
		fmt.Println("  dev   - Seed the database with random users, posts, follows and conversations")
		fmt.Println("  test  - Seed the fixed alice/bob/charlie/diana/eve accounts")
		fmt.Println("  clean - Remove all seeded data (use with caution)")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	db, err := database.Initialize(cfg)
	if err != nil {
		logger.FatalWithFields("Failed to connect to database", err)
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		logger.FatalWithFields("Failed to run migrations", err)
	}

	ctx := context.Background()
	seeder := seed.NewSeeder(db, seedFromEnv())
	start := time.Now()

	switch command {
	case "dev":
		opts := seed.DefaultOptions()
		if n, err := strconv.Atoi(os.Getenv("SEED_USERS")); err == nil && n > 0 {
			opts.Users = n
		}
		if _, err := seeder.SeedDev(ctx, opts); err != nil {
			logger.FatalWithFields("Seeding failed", err)
		}
	case "test":
		users, err := seeder.SeedTest(ctx)
		if err != nil {
			logger.FatalWithFields("Seeding failed", err)
		}
		for _, u := range users {
			logger.Log.Info("Test user", zap.String("username", u.Username), zap.String("user_id", u.ID), zap.String("role", u.Role))
		}
	case "clean":
		if err := seeder.Clean(ctx); err != nil {
			logger.FatalWithFields("Clean failed", err)
		}
	}

	logger.Log.Info("Done", zap.String("command", command), zap.Duration("elapsed", time.Since(start)))
}

// seedFromEnv reads SEED so runs can be reproduced; 0 means random
func seedFromEnv() uint64 {
	v, err := strconv.ParseUint(os.Getenv("SEED"), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
