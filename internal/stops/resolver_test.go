package stops

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me97esn/gymnasieskolor/internal/domain"
	"github.com/me97esn/gymnasieskolor/internal/ratelimit"
)

type search struct {
	query string
	fuzzy bool
}

// fakeSearcher replays a scripted answer per (query, fuzzy) pair and
// records the order of searches it saw.
type fakeSearcher struct {
	answers map[search][]domain.StopCandidate
	errs    map[search]error
	seen    []search
}

func (f *fakeSearcher) FindStop(ctx context.Context, query string, fuzzy bool) ([]domain.StopCandidate, error) {
	s := search{query: query, fuzzy: fuzzy}
	f.seen = append(f.seen, s)
	if err := f.errs[s]; err != nil {
		return nil, err
	}
	return f.answers[s], nil
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestResolveFallbackChainOrdering(t *testing.T) {
	// exact and fuzzy fail, compound exact fails, compound fuzzy hits
	want := domain.StopCandidate{ExternalID: "740", Name: "Sjölins gymnasium", Weight: 100}
	f := &fakeSearcher{answers: map[search][]domain.StopCandidate{
		{query: "Sjölins Södermalm", fuzzy: true}: {want},
	}}

	r := NewResolver(f, quietLogger())
	got, found, err := r.Resolve(context.Background(), "Sjölins", "Södermalm")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, want, got)

	assert.Equal(t, []search{
		{query: "Sjölins", fuzzy: false},
		{query: "Sjölins", fuzzy: true},
		{query: "Sjölins Södermalm", fuzzy: false},
		{query: "Sjölins Södermalm", fuzzy: true},
	}, f.seen)
}

func TestResolveStopsAtFirstSuccess(t *testing.T) {
	f := &fakeSearcher{answers: map[search][]domain.StopCandidate{
		{query: "T-Centralen", fuzzy: false}: {{ExternalID: "1", Weight: 1}},
	}}

	r := NewResolver(f, quietLogger())
	_, found, err := r.Resolve(context.Background(), "T-Centralen", "Stockholm")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Len(t, f.seen, 1, "later strategies must not run after a hit")
}

func TestResolvePicksHighestWeightFirstOnTie(t *testing.T) {
	f := &fakeSearcher{answers: map[search][]domain.StopCandidate{
		{query: "Odenplan", fuzzy: false}: {
			{ExternalID: "low", Weight: 10},
			{ExternalID: "first-high", Weight: 90},
			{ExternalID: "second-high", Weight: 90},
		},
	}}

	r := NewResolver(f, quietLogger())
	got, found, err := r.Resolve(context.Background(), "Odenplan", "")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "first-high", got.ExternalID, "ties break by response order")
}

func TestResolveNotFoundIsNotAnError(t *testing.T) {
	f := &fakeSearcher{}
	r := NewResolver(f, quietLogger())

	_, found, err := r.Resolve(context.Background(), "Atlantis", "Södermalm")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Len(t, f.seen, 4, "all strategies tried before giving up")
}

func TestResolveSkipsCompoundWithoutHint(t *testing.T) {
	f := &fakeSearcher{}
	r := NewResolver(f, quietLogger())

	_, found, err := r.Resolve(context.Background(), "Atlantis", "")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Len(t, f.seen, 2)
}

func TestResolveContinuesPastStrategyError(t *testing.T) {
	f := &fakeSearcher{
		errs: map[search]error{
			{query: "Skanstull", fuzzy: false}: errors.New("boom"),
		},
		answers: map[search][]domain.StopCandidate{
			{query: "Skanstull", fuzzy: true}: {{ExternalID: "740", Weight: 5}},
		},
	}

	r := NewResolver(f, quietLogger())
	got, found, err := r.Resolve(context.Background(), "Skanstull", "")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "740", got.ExternalID)
}

func TestResolveAbortsOnQuotaExhaustion(t *testing.T) {
	f := &fakeSearcher{
		errs: map[search]error{
			{query: "Gullmarsplan", fuzzy: false}: &ratelimit.QuotaError{Service: "resrobot", Quota: 30000},
		},
	}

	r := NewResolver(f, quietLogger())
	_, found, err := r.Resolve(context.Background(), "Gullmarsplan", "Johanneshov")
	require.Error(t, err)
	assert.True(t, ratelimit.IsQuotaExceeded(err))
	assert.False(t, found)
	assert.Len(t, f.seen, 1, "no further strategies once the budget is gone")
}
