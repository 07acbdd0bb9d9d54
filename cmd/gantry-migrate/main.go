package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/gantryhq/gantry/pkg/storage"
)

var (
	databaseURL = flag.String("database-url", "", "Postgres connection string (default: DATABASE_URL env)")
	dryRun      = flag.Bool("dry-run", false, "Print the schema without applying it")
	timeout     = flag.Duration("timeout", 30*time.Second, "Migration timeout")
)

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags)
	log.Println("Gantry Schema Migration Tool")
	log.Println("============================")

	url := *databaseURL
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		log.Fatal("no database URL: pass --database-url or set DATABASE_URL")
	}

	if *dryRun {
		fmt.Print(storage.Schema)
		log.Println("Dry run completed. No changes made.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := sql.Open("pgx", url)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to reach database: %v", err)
	}

	if _, err := db.ExecContext(ctx, storage.Schema); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Migration completed successfully")
}
