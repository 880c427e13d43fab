// Command migrate applies the update record schema to the database named by
// DATABASE_URL. Migrations are embedded in the binary unless -dir is given.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/archon-research/oracle-pusher/db"
	"github.com/archon-research/oracle-pusher/db/migrator"
	"github.com/archon-research/oracle-pusher/internal/pkg/env"
)

func main() {
	_ = godotenv.Load()

	dir := flag.String("dir", "", "Read migrations from this directory instead of the embedded set")
	list := flag.Bool("list", false, "List applied migrations after applying")
	flag.Parse()

	connStr := requireEnv("DATABASE_URL")
	ctx := context.Background()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: env.ParseLogLevel(slog.LevelInfo),
	}))

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	m := migrator.NewFS(pool, db.Migrations(), logger)
	if *dir != "" {
		m = migrator.NewFS(pool, os.DirFS(*dir), logger)
	}
	if err := m.ApplyAll(ctx); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	if *list {
		applied, err := m.ListApplied(ctx)
		if err != nil {
			log.Fatalf("Listing migrations failed: %v", err)
		}
		for _, name := range applied {
			logger.Info("applied", "file", name)
		}
	}

	logger.Info("✓ All migrations up to date")
}

func requireEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("required environment variable not set: %s", key)
	}
	return value
}
