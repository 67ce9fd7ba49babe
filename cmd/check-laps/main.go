package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/kdimtricp/laptimer/internal/database"
	"github.com/kdimtricp/laptimer/internal/lapping"
	"github.com/kdimtricp/laptimer/internal/lapstats"
	"github.com/kdimtricp/laptimer/internal/models"
)

func main() {
	var (
		dbPath    = flag.String("db", "./laptimer.db", "Path to the sqlite database")
		sessionID = flag.String("session", "", "Only show this session")
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

	ctx := context.Background()
	sessionRepo := database.NewSessionRepository(db)
	lapRepo := database.NewLapRepository(db)

	fmt.Println("Lap Timer Sessions")
	fmt.Println("==================")

	var sessions []models.Session
	if *sessionID != "" {
		s, err := sessionRepo.GetByID(ctx, *sessionID)
		if err != nil {
			log.Fatal("Failed to load session:", err)
		}
		sessions = append(sessions, *s)
	} else {
		sessions, err = sessionRepo.List(ctx)
		if err != nil {
			log.Fatal("Failed to list sessions:", err)
		}
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions recorded yet")
		return
	}

	var all []models.Lap
	if *sessionID != "" {
		all, err = lapRepo.ListBySession(ctx, *sessionID)
	} else {
		all, err = lapRepo.ListAll(ctx)
	}
	if err != nil {
		log.Fatal("Failed to load laps:", err)
	}

	bySession := make(map[string][]models.Lap)
	for _, lap := range all {
		bySession[lap.SessionID] = append(bySession[lap.SessionID], lap)
	}

	for _, s := range sessions {
		laps := bySession[s.ID]

		status := "open"
		if s.ClosedAt != nil {
			status = "closed " + s.ClosedAt.Format("Jan 2, 2006 15:04")
		}
		fmt.Printf("\nSession %s (%s, %s)\n", s.ID, s.Model, status)
		fmt.Printf("  Started: %s, laps: %d\n", s.CreatedAt.Format("Jan 2, 2006 15:04"), len(laps))

		for i, lap := range laps {
			fmt.Printf("  %3d. %-20s %s  (%s)\n", i+1, lap.Subject, lapping.ClockFormat(lap.Duration), lap.Reason)
		}
	}

	summaries := lapstats.Summarize(all)
	if len(summaries) == 0 {
		return
	}

	fmt.Println("\nBy subject:")
	fmt.Println("-----------")
	for _, s := range summaries {
		fmt.Printf("%-20s laps %3d  best %s  worst %s  mean %s  stddev %s\n",
			s.Subject, s.Count,
			lapping.ClockFormat(s.Best), lapping.ClockFormat(s.Worst),
			lapping.ClockFormat(s.Mean), lapping.ClockFormat(s.StdDev))
	}
}
