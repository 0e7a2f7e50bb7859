package main

import (
	"fmt"
	"log"
	"os"

	"github.com/whaletrack/core/app"
	"github.com/whaletrack/core/config"
	"github.com/whaletrack/core/database"
)

// The core publishes two entry points on one binary: `serve` (API +
// collectors + scheduler, gated by ENABLE_INGESTORS/ENABLE_SCHEDULER) and
// `migrate` (schema apply only, for use ahead of a `serve` rollout).
func main() {
	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	cfg := config.LoadFromEnv()

	switch cmd {
	case "serve":
		application := app.New(cfg)
		if err := application.Start(); err != nil {
			log.Fatal(err)
		}
	case "migrate":
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		if err := db.Migrate(); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
		if err := db.Close(); err != nil {
			log.Fatalf("error closing database: %v", err)
		}
		log.Println("migration complete")
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q; usage: %s [serve|migrate]\n", cmd, os.Args[0])
		os.Exit(1)
	}
}
