// Package ranker orders installed applications by how closely their display
// names match a recognised phrase.
//
// Ranking is synchronous and side-effect free apart from debug logging, so it
// may run directly on the goroutine that delivered the recognition result.
package ranker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/MrWong99/voicelaunch/internal/similarity"
	"github.com/MrWong99/voicelaunch/internal/textnorm"
	"github.com/MrWong99/voicelaunch/pkg/apps"
)

// MatchConfig controls which candidates survive ranking.
type MatchConfig struct {
	// Threshold is the exclusive lower bound on similarity, in [0, 1]. A
	// candidate scoring exactly Threshold is dropped. Default 0.
	Threshold float64

	// Algorithm selects the similarity measure. Default Orthographic.
	Algorithm similarity.Algorithm
}

// DefaultMatchConfig is the zero-threshold orthographic configuration.
var DefaultMatchConfig = MatchConfig{Threshold: 0, Algorithm: similarity.Orthographic}

// Validate reports whether c is usable.
func (c MatchConfig) Validate() error {
	var errs []error
	if !(c.Threshold >= 0 && c.Threshold <= 1) {
		errs = append(errs, fmt.Errorf("threshold %v is out of range [0, 1]", c.Threshold))
	}
	if !c.Algorithm.IsValid() {
		errs = append(errs, fmt.Errorf("algorithm %s is invalid; valid values: orthographic, phonetic", c.Algorithm))
	}
	return errors.Join(errs...)
}

// Candidate is an application that matched a query.
type Candidate struct {
	DisplayName string  `json:"display_name"`
	Identifier  string  `json:"identifier"`
	Similarity  float64 `json:"similarity"`
}

// Ranker scores candidates with a fixed text normalizer.
// A Ranker is immutable and safe for concurrent use.
type Ranker struct {
	norm textnorm.Normalizer
}

// New returns a Ranker normalising with norm.
func New(norm textnorm.Normalizer) *Ranker {
	return &Ranker{norm: norm}
}

// Rank normalises query and every display name, keeps the candidates whose
// similarity is strictly greater than cfg.Threshold, and returns them sorted
// by descending similarity. Candidates with equal similarity keep their input
// order. An empty result is not an error.
func (r *Ranker) Rank(query string, candidates []apps.App, cfg MatchConfig) []Candidate {
	q := r.norm.Normalize(query)

	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		sim := similarity.Score(q, r.norm.Normalize(c.DisplayName), cfg.Algorithm)
		if sim > cfg.Threshold {
			out = append(out, Candidate{
				DisplayName: c.DisplayName,
				Identifier:  c.Identifier,
				Similarity:  sim,
			})
		}
	}

	slices.SortStableFunc(out, func(a, b Candidate) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		}
		return 0
	})

	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		for _, c := range out {
			slog.Debug("ranker: candidate",
				"query", q,
				"name", c.DisplayName,
				"id", c.Identifier,
				"similarity", c.Similarity,
				"algorithm", cfg.Algorithm.String(),
			)
		}
	}
	return out
}

// Rank ranks candidates using [textnorm.Default].
func Rank(query string, candidates []apps.App, cfg MatchConfig) []Candidate {
	return New(textnorm.Default).Rank(query, candidates, cfg)
}
