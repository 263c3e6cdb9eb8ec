package pipeline

import (
	"bytes"
	"context"
	"encoding/csv"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me97esn/gymnasieskolor/internal/domain"
	"github.com/me97esn/gymnasieskolor/internal/export"
	"github.com/me97esn/gymnasieskolor/internal/providers/ednia"
	"github.com/me97esn/gymnasieskolor/internal/ratelimit"
	"github.com/me97esn/gymnasieskolor/internal/stops"
	"github.com/me97esn/gymnasieskolor/internal/traveltime"
)

/* -------- fakes -------- */

type fakeCatalog struct {
	mu        sync.Mutex
	pages     []*ednia.SchoolPage
	listErr   error
	details   map[string]*domain.ProgramDetail // schoolID+"/"+program
	detailErr map[string]error
	listCalls int
}

func (f *fakeCatalog) ListSchools(ctx context.Context, municipality string, offset, take int) (*ednia.SchoolPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	page := f.pages[f.listCalls]
	f.listCalls++
	return page, nil
}

func (f *fakeCatalog) GetProgramPage(ctx context.Context, schoolID, programCode, municipality string) (*domain.ProgramDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := schoolID + "/" + programCode
	if err := f.detailErr[key]; err != nil {
		return nil, err
	}
	if d, ok := f.details[key]; ok {
		return d, nil
	}
	return &domain.ProgramDetail{}, nil
}

type fakeTransit struct {
	mu        sync.Mutex
	stops     map[string][]domain.StopCandidate // by query, fuzzy or not
	stopErrs  map[string]error                  // by query; overrides stops
	trips     map[string]string                 // originID+"->"+destID -> ISO duration
	planCalls int
}

func (f *fakeTransit) FindStop(ctx context.Context, query string, fuzzy bool) ([]domain.StopCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.stopErrs[query]; err != nil {
		return nil, err
	}
	return f.stops[query], nil
}

func (f *fakeTransit) PlanTrip(ctx context.Context, originID, destID string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.planCalls++
	d, ok := f.trips[originID+"->"+destID]
	return d, ok, nil
}

/* -------- helpers -------- */

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newPipeline(catalog CatalogClient, transit *fakeTransit) (*Pipeline, *bytes.Buffer) {
	var buf bytes.Buffer
	w, err := export.NewWriter(&buf)
	if err != nil {
		panic(err)
	}
	log := quietLogger()
	return &Pipeline{
		Catalog:      catalog,
		Planner:      transit,
		Resolver:     stops.NewResolver(transit, log),
		Cache:        traveltime.NewCache(),
		Out:          w,
		Log:          log,
		Origin:       "Björkhagen",
		Municipality: "stockholm",
	}, &buf
}

func readCSV(t *testing.T, buf *bytes.Buffer) [][]string {
	t.Helper()
	records, err := csv.NewReader(buf).ReadAll()
	require.NoError(t, err)
	return records
}

func singlePage(schools ...domain.School) []*ednia.SchoolPage {
	return []*ednia.SchoolPage{{Schools: schools}}
}

/* -------- tests -------- */

func sjolins() domain.School {
	return domain.School{
		ID:           "s1",
		Name:         "Sjölins Gymnasium Södermalm",
		Location:     "Södermalm",
		Municipality: "stockholm",
		Programs:     []string{"NA"},
	}
}

func TestRunEndToEnd(t *testing.T) {
	catalog := &fakeCatalog{
		pages: singlePage(sjolins()),
		details: map[string]*domain.ProgramDetail{
			"s1/NA": {
				EducationStats: domain.EducationStats{AverageGrade: fptr(16.3), FlowthroughRate: fptr(0.98)},
				FemaleRatio:    fptr(0.52),
				StudyPaths: []domain.StudyPath{
					{Name: "Naturvetenskap", CompareNumber: fptr(320), Min: fptr(320), Median: fptr(325), Admitted: iptr(68)},
					{Name: "Naturvetenskap och samhälle", CompareNumber: fptr(312.5), Min: fptr(312.5), Median: fptr(320), Admitted: iptr(28)},
				},
			},
		},
	}
	transit := &fakeTransit{
		stops: map[string][]domain.StopCandidate{
			"Björkhagen":                  {{ExternalID: "origin-1", Name: "Björkhagen T-bana", Weight: 5000}},
			"Sjölins Gymnasium Södermalm": {{ExternalID: "dest-1", Weight: 900}},
		},
		trips: map[string]string{"origin-1->dest-1": "PT12M"},
	}

	p, buf := newPipeline(catalog, transit)
	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, StateDone, p.State())
	assert.Equal(t, int64(2), p.RowsWritten())

	records := readCSV(t, buf)
	require.Len(t, records, 3, "header plus one row per study path")

	first, second := records[1], records[2]
	// shared columns
	for _, row := range [][]string{first, second} {
		assert.Equal(t, "Sjölins Gymnasium Södermalm", row[0])
		assert.Equal(t, "Södermalm", row[1])
		assert.Equal(t, "NA", row[2])
		assert.Equal(t, "16.3", row[3])
		assert.Equal(t, "0.98", row[4])
		assert.Equal(t, "0.52", row[5])
		assert.Equal(t, "12", row[11])
	}
	// study-path columns differ
	assert.Equal(t, "Naturvetenskap", first[6])
	assert.Equal(t, "320", first[7])
	assert.Equal(t, "68", first[10])
	assert.Equal(t, "Naturvetenskap och samhälle", second[6])
	assert.Equal(t, "312.5", second[7])
	assert.Equal(t, "28", second[10])
}

func TestRunTravelTimeResolvedOncePerSchool(t *testing.T) {
	school := sjolins()
	school.Programs = []string{"NA", "SA", "EK"}

	catalog := &fakeCatalog{
		pages: singlePage(school),
		details: map[string]*domain.ProgramDetail{
			"s1/NA": {StudyPaths: []domain.StudyPath{{Name: "a"}}},
			"s1/SA": {StudyPaths: []domain.StudyPath{{Name: "b"}}},
			"s1/EK": {StudyPaths: []domain.StudyPath{{Name: "c"}}},
		},
	}
	transit := &fakeTransit{
		stops: map[string][]domain.StopCandidate{
			"Björkhagen":                  {{ExternalID: "o", Weight: 1}},
			"Sjölins Gymnasium Södermalm": {{ExternalID: "d", Weight: 1}},
		},
		trips: map[string]string{"o->d": "PT1H"},
	}

	p, buf := newPipeline(catalog, transit)
	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, 1, transit.planCalls, "one trip query per school, not per program")
	records := readCSV(t, buf)
	require.Len(t, records, 4)
	for _, row := range records[1:] {
		assert.Equal(t, "60", row[11], "PT1H is 60 minutes")
	}
}

func TestRunStopNotFoundDegradesToNA(t *testing.T) {
	catalog := &fakeCatalog{
		pages: singlePage(sjolins()),
		details: map[string]*domain.ProgramDetail{
			"s1/NA": {StudyPaths: []domain.StudyPath{{Name: "a"}, {Name: "b"}}},
		},
	}
	transit := &fakeTransit{
		stops: map[string][]domain.StopCandidate{
			"Björkhagen": {{ExternalID: "o", Weight: 1}},
			// no entry for the school: every strategy comes up empty
		},
	}

	p, buf := newPipeline(catalog, transit)
	require.NoError(t, p.Run(context.Background()), "a school without a stop must not abort the run")
	assert.Equal(t, StateDone, p.State())

	records := readCSV(t, buf)
	require.Len(t, records, 3)
	for _, row := range records[1:] {
		assert.Equal(t, "N/A", row[11])
	}
}

func TestRunTransitQuotaExhaustionDegradesToNA(t *testing.T) {
	catalog := &fakeCatalog{
		pages: singlePage(sjolins()),
		details: map[string]*domain.ProgramDetail{
			"s1/NA": {StudyPaths: []domain.StudyPath{{Name: "a"}, {Name: "b"}}},
		},
	}
	transit := &fakeTransit{
		stops: map[string][]domain.StopCandidate{
			"Björkhagen": {{ExternalID: "o", Weight: 1}},
		},
		// budget spent right after the origin resolved
		stopErrs: map[string]error{
			"Sjölins Gymnasium Södermalm": &ratelimit.QuotaError{Service: "resrobot", Quota: 30000},
		},
	}

	p, buf := newPipeline(catalog, transit)
	require.NoError(t, p.Run(context.Background()), "a spent transit budget must not abort the run")
	assert.Equal(t, StateDone, p.State())
	assert.Equal(t, 0, transit.planCalls, "no trips planned once the budget is gone")

	records := readCSV(t, buf)
	require.Len(t, records, 3, "school data is still exported")
	for _, row := range records[1:] {
		assert.Equal(t, "N/A", row[11])
	}
}

func TestRunNoItineraryDegradesToNA(t *testing.T) {
	catalog := &fakeCatalog{
		pages: singlePage(sjolins()),
		details: map[string]*domain.ProgramDetail{
			"s1/NA": {StudyPaths: []domain.StudyPath{{Name: "a"}}},
		},
	}
	transit := &fakeTransit{
		stops: map[string][]domain.StopCandidate{
			"Björkhagen":                  {{ExternalID: "o", Weight: 1}},
			"Sjölins Gymnasium Södermalm": {{ExternalID: "d", Weight: 1}},
		},
		// stop resolves but the planner has no itinerary
		trips: map[string]string{},
	}

	p, buf := newPipeline(catalog, transit)
	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, 1, transit.planCalls)

	records := readCSV(t, buf)
	require.Len(t, records, 2)
	assert.Equal(t, "N/A", records[1][11])
}

func TestRunProgramDetailFailureIsIsolated(t *testing.T) {
	school := sjolins()
	school.Programs = []string{"NA", "SA"}

	catalog := &fakeCatalog{
		pages: singlePage(school),
		details: map[string]*domain.ProgramDetail{
			"s1/SA": {StudyPaths: []domain.StudyPath{{Name: "Samhällsvetenskap"}}},
		},
		detailErr: map[string]error{
			"s1/NA": errors.New("status=500 after retries"),
		},
	}
	transit := &fakeTransit{
		stops: map[string][]domain.StopCandidate{
			"Björkhagen":                  {{ExternalID: "o", Weight: 1}},
			"Sjölins Gymnasium Södermalm": {{ExternalID: "d", Weight: 1}},
		},
		trips: map[string]string{"o->d": "PT25M"},
	}

	p, buf := newPipeline(catalog, transit)
	require.NoError(t, p.Run(context.Background()), "one broken program must not abort the run")

	records := readCSV(t, buf)
	require.Len(t, records, 2, "failed program contributes zero rows")
	assert.Equal(t, "Samhällsvetenskap", records[1][6])
	assert.Equal(t, "25", records[1][11])
}

func TestRunEmptyStudyPathsEmitNothing(t *testing.T) {
	catalog := &fakeCatalog{
		pages: singlePage(sjolins()),
		details: map[string]*domain.ProgramDetail{
			"s1/NA": {FemaleRatio: fptr(0.5)}, // detail exists but no study paths
		},
	}
	transit := &fakeTransit{
		stops: map[string][]domain.StopCandidate{
			"Björkhagen": {{ExternalID: "o", Weight: 1}},
		},
	}

	p, buf := newPipeline(catalog, transit)
	require.NoError(t, p.Run(context.Background()))

	records := readCSV(t, buf)
	assert.Len(t, records, 1, "header only")
	assert.Equal(t, int64(0), p.RowsWritten())
}

func TestRunPagesUntilExhausted(t *testing.T) {
	s2 := sjolins()
	s2.ID, s2.Name = "s2", "Kungsholmens Gymnasium"

	catalog := &fakeCatalog{
		pages: []*ednia.SchoolPage{
			{Schools: []domain.School{sjolins()}, HasMore: true, NextOffset: 1},
			{Schools: []domain.School{s2}},
		},
		details: map[string]*domain.ProgramDetail{
			"s1/NA": {StudyPaths: []domain.StudyPath{{Name: "a"}}},
			"s2/NA": {StudyPaths: []domain.StudyPath{{Name: "b"}}},
		},
	}
	transit := &fakeTransit{
		stops: map[string][]domain.StopCandidate{
			"Björkhagen": {{ExternalID: "o", Weight: 1}},
		},
	}

	p, buf := newPipeline(catalog, transit)
	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, 2, catalog.listCalls, "must page until hasMore clears")
	assert.Len(t, readCSV(t, buf), 3, "schools from both pages exported")
}

func TestRunSchoolLimit(t *testing.T) {
	s2 := sjolins()
	s2.ID, s2.Name = "s2", "Second School"

	catalog := &fakeCatalog{
		pages: singlePage(sjolins(), s2),
		details: map[string]*domain.ProgramDetail{
			"s1/NA": {StudyPaths: []domain.StudyPath{{Name: "a"}}},
			"s2/NA": {StudyPaths: []domain.StudyPath{{Name: "b"}}},
		},
	}
	transit := &fakeTransit{
		stops: map[string][]domain.StopCandidate{
			"Björkhagen": {{ExternalID: "o", Weight: 1}},
		},
	}

	p, buf := newPipeline(catalog, transit)
	p.Limit = 1
	require.NoError(t, p.Run(context.Background()))
	assert.Len(t, readCSV(t, buf), 2, "limit caps the school count")
}

func TestRunOriginNotFoundIsFatal(t *testing.T) {
	catalog := &fakeCatalog{pages: singlePage(sjolins())}
	transit := &fakeTransit{} // nothing resolves

	p, _ := newPipeline(catalog, transit)
	err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOriginNotFound)
	assert.Equal(t, StateFailed, p.State())
}

func TestRunSchoolListFailureIsFatal(t *testing.T) {
	catalog := &fakeCatalog{listErr: errors.New("status=401")}

	p, _ := newPipeline(catalog, &fakeTransit{})
	err := p.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, p.State())
}

func TestRunParallelWorkersProduceAllRows(t *testing.T) {
	var schools []domain.School
	catalog := &fakeCatalog{details: map[string]*domain.ProgramDetail{}}
	transit := &fakeTransit{
		stops: map[string][]domain.StopCandidate{
			"Björkhagen": {{ExternalID: "o", Weight: 1}},
		},
		trips: map[string]string{},
	}
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		s := domain.School{ID: id, Name: "School " + id, Programs: []string{"NA"}}
		schools = append(schools, s)
		catalog.details[id+"/NA"] = &domain.ProgramDetail{StudyPaths: []domain.StudyPath{{Name: "path-" + id}}}
		transit.stops[s.Name] = []domain.StopCandidate{{ExternalID: "stop-" + id, Weight: 1}}
		transit.trips["o->stop-"+id] = "PT15M"
	}
	catalog.pages = singlePage(schools...)

	p, buf := newPipeline(catalog, transit)
	p.Workers = 4
	require.NoError(t, p.Run(context.Background()))

	records := readCSV(t, buf)
	assert.Len(t, records, 7, "every school contributes its row")
	assert.Equal(t, int64(6), p.RowsWritten())
}
