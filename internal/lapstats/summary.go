// Package lapstats summarizes recorded laps per subject.
package lapstats

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/kdimtricp/laptimer/internal/models"
)

type Summary struct {
	Subject string        `json:"subject"`
	Count   int           `json:"count"`
	Best    time.Duration `json:"best_ns"`
	Worst   time.Duration `json:"worst_ns"`
	Mean    time.Duration `json:"mean_ns"`
	StdDev  time.Duration `json:"stddev_ns"`
	Total   time.Duration `json:"total_ns"`
}

// Summarize groups laps by subject. The result is sorted by subject name.
// StdDev is the sample standard deviation and is zero for a single lap.
func Summarize(laps []models.Lap) []Summary {
	bySubject := make(map[string][]float64)
	for _, lap := range laps {
		bySubject[lap.Subject] = append(bySubject[lap.Subject], float64(lap.Duration))
	}

	summaries := make([]Summary, 0, len(bySubject))
	for subject, durations := range bySubject {
		s := Summary{
			Subject: subject,
			Count:   len(durations),
			Best:    time.Duration(durations[0]),
			Worst:   time.Duration(durations[0]),
		}

		var total float64
		for _, d := range durations {
			total += d
			if time.Duration(d) < s.Best {
				s.Best = time.Duration(d)
			}
			if time.Duration(d) > s.Worst {
				s.Worst = time.Duration(d)
			}
		}
		s.Total = time.Duration(total)

		mean, std := stat.MeanStdDev(durations, nil)
		s.Mean = time.Duration(mean)
		if len(durations) > 1 {
			s.StdDev = time.Duration(std)
		}

		summaries = append(summaries, s)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Subject < summaries[j].Subject
	})
	return summaries
}
