package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/kdimtricp/laptimer/internal/database"
)

func main() {
	var (
		dbPath = flag.String("db", "./laptimer.db", "Path to the sqlite database")
		status = flag.Bool("status", false, "Show migration status only")
		down   = flag.Bool("down", false, "Roll back the most recent migration")
	)
	flag.Parse()

	if env := os.Getenv("DB_PATH"); env != "" {
		*dbPath = env
	}

	db, err := database.NewDB(database.Config{SQLitePath: *dbPath})
	if err != nil {
		log.Fatal("Failed to open database:", err)
	}
	defer db.Close()

	switch {
	case *status:
		version, dirty, err := db.MigrateVersion()
		if err != nil {
			log.Fatal("Failed to read migration version:", err)
		}

		fmt.Println("Migration Status:")
		fmt.Println("=================")
		if version == 0 {
			fmt.Println("No migrations applied")
			return
		}
		state := "clean"
		if dirty {
			state = "dirty"
		}
		fmt.Printf("Version %d [%s]\n", version, state)

	case *down:
		fmt.Printf("Rolling back one migration on %s...\n", *dbPath)
		if err := db.MigrateDown(); err != nil {
			log.Fatal("Failed to roll back migration:", err)
		}
		fmt.Println("Rollback completed successfully!")

	default:
		fmt.Printf("Running migrations on %s...\n", *dbPath)
		if err := db.MigrateUp(); err != nil {
			log.Fatal("Failed to run migrations:", err)
		}
		fmt.Println("Migrations completed successfully!")
	}
}
