// Package classify turns raw classifier output into ranked observations.
package classify

import (
	"sort"
	"strings"

	"github.com/kdimtricp/laptimer/internal/lapping"
)

type Label struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Rank sorts a class probability map best first and keeps the top n entries.
// Equal probabilities are ordered by name so the result is stable.
func Rank(probs map[string]float64, n int) []Label {
	labels := make([]Label, 0, len(probs))
	for name, p := range probs {
		labels = append(labels, Label{Name: name, Confidence: p})
	}

	sort.Slice(labels, func(i, j int) bool {
		if labels[i].Confidence != labels[j].Confidence {
			return labels[i].Confidence > labels[j].Confidence
		}
		return labels[i].Name < labels[j].Name
	})

	if n >= 0 && len(labels) > n {
		labels = labels[:n]
	}
	return labels
}

// Observations converts ranked labels into lap machine input.
func Observations(labels []Label) []lapping.Observation {
	obs := make([]lapping.Observation, len(labels))
	for i, l := range labels {
		obs[i] = lapping.Observation{Label: l.Name, Confidence: l.Confidence}
	}
	return obs
}

// Display renders one "<percent>%: <name>" line per label.
func Display(labels []Label) string {
	var b strings.Builder
	for _, l := range labels {
		b.WriteString(lapping.Percentage(l.Confidence))
		b.WriteString("%: ")
		b.WriteString(l.Name)
		b.WriteString("\n")
	}
	return b.String()
}
