package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/kdimtricp/laptimer/internal/classify"
	"github.com/kdimtricp/laptimer/internal/database"
	"github.com/kdimtricp/laptimer/internal/lapping"
	"github.com/kdimtricp/laptimer/internal/lapstats"
	"github.com/kdimtricp/laptimer/internal/models"
	"github.com/kdimtricp/laptimer/internal/replay"
)

func main() {
	defaults := lapping.DefaultConfig()

	var (
		input     = flag.String("in", "-", "Event log to replay, one JSON event per line (- for stdin)")
		tolerance = flag.Float64("tolerance", defaults.Tolerance, "Stability tolerance")
		minimum   = flag.Duration("minimum", defaults.MinimumLap, "Minimum lap duration")
		topK      = flag.Int("topk", defaults.TopK, "Ranked predictions considered while lapping")
		dbPath    = flag.String("db", "", "Store the replayed laps in this sqlite database")
		model     = flag.String("model", classify.Fruits.String(), "Model name recorded with the session")
		verbose   = flag.Bool("v", false, "Print the two best labels of every observation")
	)
	flag.Parse()

	cfg := defaults
	cfg.Tolerance = *tolerance
	cfg.MinimumLap = *minimum
	cfg.TopK = *topK

	var in io.Reader = os.Stdin
	if *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			log.Fatal("Failed to open event log:", err)
		}
		defer f.Close()
		in = f
	}

	events, err := replay.ReadEvents(in)
	if err != nil {
		log.Fatal("Failed to read event log:", err)
	}

	if *verbose {
		for _, ev := range events {
			if ev.Kind != replay.EventObserve {
				continue
			}
			fmt.Printf("@%.0fms\n%s", ev.AtMS, classify.Display(ev.Top(2)))
		}
		fmt.Println()
	}

	laps, err := replay.Run(cfg, events)
	if err != nil {
		log.Fatal("Replay failed:", err)
	}

	fmt.Printf("Replayed %d events, %d laps\n", len(events), len(laps))
	for i, lap := range laps {
		fmt.Printf("%3d. %-20s %s  (%s)\n", i+1, lap.Name, lapping.ClockFormat(lap.Duration), lap.Reason)
	}

	records := make([]models.Lap, len(laps))
	for i, lap := range laps {
		records[i] = *models.NewLap("", lap.Name, lap.Duration, lap.StartedAt, lap.EndedAt, string(lap.Reason))
	}

	if len(records) > 0 {
		fmt.Println()
		for _, s := range lapstats.Summarize(records) {
			fmt.Printf("%-20s laps %d  best %s  mean %s\n", s.Subject, s.Count,
				lapping.ClockFormat(s.Best), lapping.ClockFormat(s.Mean))
		}
	}

	if *dbPath == "" {
		return
	}

	modelType, err := classify.ParseModelType(*model)
	if err != nil {
		log.Fatal(err)
	}

	sessionID, err := store(*dbPath, modelType, records)
	if err != nil {
		log.Fatal("Failed to store laps:", err)
	}
	fmt.Printf("Stored as session %s\n", sessionID)
}

func store(path string, model classify.ModelType, laps []models.Lap) (string, error) {
	db, err := database.NewDB(database.Config{SQLitePath: path})
	if err != nil {
		return "", err
	}
	defer db.Close()

	if err := db.MigrateUp(); err != nil {
		return "", err
	}

	ctx := context.Background()
	sessionRepo := database.NewSessionRepository(db)
	lapRepo := database.NewLapRepository(db)

	session := models.NewSession(model.String())
	session.CreatedAt = replay.Epoch
	if err := sessionRepo.Insert(ctx, session); err != nil {
		return "", err
	}

	closedAt := replay.Epoch
	for i := range laps {
		laps[i].SessionID = session.ID
		if err := lapRepo.Insert(ctx, &laps[i]); err != nil {
			return "", err
		}
		closedAt = laps[i].EndedAt
	}

	if err := sessionRepo.MarkClosed(ctx, session.ID, closedAt); err != nil {
		return "", err
	}
	return session.ID, nil
}
