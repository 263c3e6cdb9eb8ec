// Package stops maps free-text place names to transit stop
// identifiers, trying progressively looser search strategies.
package stops

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/me97esn/gymnasieskolor/internal/domain"
	"github.com/me97esn/gymnasieskolor/internal/ratelimit"
)

// StopSearcher is the slice of the transit client the resolver needs.
type StopSearcher interface {
	FindStop(ctx context.Context, query string, fuzzy bool) ([]domain.StopCandidate, error)
}

type Resolver struct {
	transit StopSearcher
	log     logrus.FieldLogger
}

func NewResolver(transit StopSearcher, log logrus.FieldLogger) *Resolver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Resolver{transit: transit, log: log}
}

// Resolve tries, in order: exact query, fuzzy query, then the query
// qualified with locationHint (exact, then fuzzy). The first strategy
// returning candidates wins; among those the highest weight is taken,
// ties broken by response order. found=false after all strategies is
// a valid outcome, not an error.
//
// Quota exhaustion aborts the chain immediately: later strategies
// would only burn the same dead budget. Any other search error fails
// just that strategy.
func (r *Resolver) Resolve(ctx context.Context, query, locationHint string) (domain.StopCandidate, bool, error) {
	type strategy struct {
		query string
		fuzzy bool
	}

	strategies := []strategy{
		{query: query, fuzzy: false},
		{query: query, fuzzy: true},
	}
	if hint := strings.TrimSpace(locationHint); hint != "" {
		compound := query + " " + hint
		strategies = append(strategies,
			strategy{query: compound, fuzzy: false},
			strategy{query: compound, fuzzy: true},
		)
	}

	for _, s := range strategies {
		candidates, err := r.transit.FindStop(ctx, s.query, s.fuzzy)
		if err != nil {
			if ratelimit.IsQuotaExceeded(err) || ctx.Err() != nil {
				return domain.StopCandidate{}, false, errors.Wrapf(err, "resolve %q", query)
			}
			r.log.WithFields(logrus.Fields{
				"query": s.query,
				"fuzzy": s.fuzzy,
			}).WithError(err).Warn("stop search strategy failed")
			continue
		}
		if len(candidates) == 0 {
			continue
		}
		return pickBest(candidates), true, nil
	}

	return domain.StopCandidate{}, false, nil
}

// pickBest prefers the highest disambiguation weight; the response
// order breaks ties, so a strict > keeps the earliest of equals.
func pickBest(candidates []domain.StopCandidate) domain.StopCandidate {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Weight > best.Weight {
			best = c
		}
	}
	return best
}
