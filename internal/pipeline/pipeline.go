// Package pipeline drives the whole export: school list, origin stop,
// per-program details, travel times, CSV rows.
package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/me97esn/gymnasieskolor/internal/concurrency"
	"github.com/me97esn/gymnasieskolor/internal/domain"
	"github.com/me97esn/gymnasieskolor/internal/export"
	"github.com/me97esn/gymnasieskolor/internal/providers/ednia"
	"github.com/me97esn/gymnasieskolor/internal/providers/resrobot"
	"github.com/me97esn/gymnasieskolor/internal/ratelimit"
	"github.com/me97esn/gymnasieskolor/internal/stops"
	"github.com/me97esn/gymnasieskolor/internal/traveltime"
)

// State tracks where the pipeline is. Failed is terminal and reachable
// from any state on a non-recoverable error.
type State int32

const (
	StateIdle State = iota
	StateFetchingSchools
	StateResolvingOrigin
	StateIteratingPrograms
	StateFinalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetchingSchools:
		return "fetching-schools"
	case StateResolvingOrigin:
		return "resolving-origin"
	case StateIteratingPrograms:
		return "iterating-programs"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrOriginNotFound means the user-supplied origin place name matched
// no transit stop. Without an origin no travel time is computable, so
// the run aborts.
var ErrOriginNotFound = errors.New("origin stop not found")

// CatalogClient is the slice of the school-catalog API the pipeline
// consumes. Satisfied by *ednia.Client.
type CatalogClient interface {
	ListSchools(ctx context.Context, municipality string, offset, take int) (*ednia.SchoolPage, error)
	GetProgramPage(ctx context.Context, schoolID, programCode, municipality string) (*domain.ProgramDetail, error)
}

// TripPlanner is the slice of the transit API used for trip queries.
// Satisfied by *resrobot.Client. Stop search goes through Resolver.
type TripPlanner interface {
	PlanTrip(ctx context.Context, originID, destID string) (duration string, found bool, err error)
}

// Pipeline owns the run-scoped state: the school list, the travel-time
// cache and the CSV sink. Collaborators are injected by handle so
// tests can swap in fakes with deterministic timing.
type Pipeline struct {
	Catalog  CatalogClient
	Planner  TripPlanner
	Resolver *stops.Resolver
	Cache    *traveltime.Cache
	Out      *export.Writer
	Log      logrus.FieldLogger

	Origin       string // place name to resolve once, e.g. "Björkhagen"
	Municipality string
	Workers      int // bounded parallelism over schools; <=1 is serial
	Limit        int // cap on schools, 0 = all
	PageSize     int // catalog page size; the catalog is small, one page usually suffices

	state atomic.Int32

	rowsWritten      atomic.Int64
	programsDegraded atomic.Int64
}

// State returns the current pipeline state.
func (p *Pipeline) State() State { return State(p.state.Load()) }

func (p *Pipeline) setState(s State) {
	p.state.Store(int32(s))
	p.Log.WithField("state", s.String()).Info("pipeline state")
}

// RowsWritten reports how many CSV rows were emitted so far.
func (p *Pipeline) RowsWritten() int64 { return p.rowsWritten.Load() }

// Run executes the export end to end. A returned error means the run
// failed as a whole; per-program and per-school failures degrade the
// affected rows instead and are only logged.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.Log == nil {
		p.Log = logrus.StandardLogger()
	}
	if p.Workers <= 0 {
		p.Workers = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = 500
	}

	schools, err := p.fetchSchools(ctx)
	if err != nil {
		p.setState(StateFailed)
		return errors.Wrap(err, "fetch school list")
	}
	if p.Limit > 0 && len(schools) > p.Limit {
		schools = schools[:p.Limit]
	}
	p.Log.WithField("schools", len(schools)).Info("school list fetched")

	originID, err := p.resolveOrigin(ctx)
	if err != nil {
		p.setState(StateFailed)
		return err
	}

	p.setState(StateIteratingPrograms)
	errs := concurrency.ForEach(ctx, schools, p.Workers, func(ctx context.Context, i int, school domain.School) error {
		return p.processSchool(ctx, i, len(schools), school, originID)
	})
	if ctx.Err() != nil {
		// Rows already assembled were flushed batch by batch; the
		// partial CSV on disk is valid.
		p.setState(StateFailed)
		return errors.Wrap(ctx.Err(), "run interrupted")
	}
	for _, err := range errs {
		// Upstream failures degrade rows inside processSchool; an
		// error surfacing here means the sink itself broke.
		p.setState(StateFailed)
		return errors.Wrap(err, "school processing")
	}

	p.setState(StateFinalizing)
	p.Log.WithFields(logrus.Fields{
		"rows":              p.rowsWritten.Load(),
		"schools":           len(schools),
		"degraded_programs": p.programsDegraded.Load(),
	}).Info("export complete")

	p.setState(StateDone)
	return nil
}

// fetchSchools pages through the catalog until hasMore is false. The
// catalog is known to be small (~179 schools in Stockholm) so this is
// normally a single call, but truncating silently is never acceptable.
func (p *Pipeline) fetchSchools(ctx context.Context) ([]domain.School, error) {
	p.setState(StateFetchingSchools)

	const maxPages = 100 // sanity cap against a hasMore that never clears

	var schools []domain.School
	offset := 0
	for page := 0; page < maxPages; page++ {
		res, err := p.Catalog.ListSchools(ctx, p.Municipality, offset, p.PageSize)
		if err != nil {
			return nil, err
		}
		schools = append(schools, res.Schools...)
		if !res.HasMore {
			return schools, nil
		}
		offset = res.NextOffset
	}
	return nil, errors.Errorf("catalog still reports more pages after %d pages", maxPages)
}

func (p *Pipeline) resolveOrigin(ctx context.Context) (string, error) {
	p.setState(StateResolvingOrigin)

	origin, found, err := p.Resolver.Resolve(ctx, p.Origin, "")
	if err != nil {
		return "", errors.Wrapf(err, "resolve origin %q", p.Origin)
	}
	if !found {
		return "", errors.Wrapf(ErrOriginNotFound, "%q", p.Origin)
	}
	p.Log.WithFields(logrus.Fields{
		"origin": origin.Name,
		"stop":   origin.ExternalID,
	}).Info("origin resolved")
	return origin.ExternalID, nil
}

// processSchool handles one school: travel time once (memoized), then
// one detail fetch per program, one CSV row per study path. Only a
// cancelled context makes it return an error; upstream failures
// degrade the affected rows and the run moves on.
func (p *Pipeline) processSchool(ctx context.Context, i, total int, school domain.School, originID string) error {
	slog := p.Log.WithFields(logrus.Fields{
		"school": school.Name,
		"id":     school.ID,
	})
	slog.Infof("processing school %d/%d", i+1, total)

	travel, err := p.Cache.GetOrResolve(ctx, school.ID, func(ctx context.Context) (domain.Minutes, error) {
		return p.resolveTravelTime(ctx, school, originID)
	})
	if err != nil {
		return err // cancellation only; nothing was memoized
	}
	if travel.Valid {
		slog.WithField("minutes", travel.Value).Info("travel time")
	} else {
		slog.Info("travel time not available")
	}

	municipality := school.Municipality
	if municipality == "" {
		municipality = p.Municipality
	}

	for _, program := range school.Programs {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		detail, err := p.Catalog.GetProgramPage(ctx, school.ID, program, municipality)
		if err != nil {
			// Partial failure is isolated per program: without the
			// detail page no study paths are known, so the program
			// contributes zero rows and the run continues.
			p.programsDegraded.Add(1)
			slog.WithField("program", program).WithError(err).Warn("program detail unavailable, skipping rows")
			continue
		}
		if len(detail.StudyPaths) == 0 {
			continue
		}

		rows := assembleRows(school, program, detail, travel)
		if err := p.Out.WriteRows(rows); err != nil {
			return errors.Wrapf(err, "write rows school=%s program=%s", school.ID, program)
		}
		p.rowsWritten.Add(int64(len(rows)))
	}
	return nil
}

// resolveTravelTime is the cache's resolver fn: stop search with the
// school's district as fallback hint, then one trip query. Every
// empty outcome (stop unknown, no itinerary, quota spent, malformed
// duration) maps to NotAvailable; only cancellation is an error.
func (p *Pipeline) resolveTravelTime(ctx context.Context, school domain.School, originID string) (domain.Minutes, error) {
	if ctx.Err() != nil {
		return domain.NotAvailable, ctx.Err()
	}

	slog := p.Log.WithFields(logrus.Fields{
		"school": school.Name,
		"id":     school.ID,
	})

	stop, found, err := p.Resolver.Resolve(ctx, school.Name, school.Location)
	if err != nil {
		if ctx.Err() != nil {
			return domain.NotAvailable, ctx.Err()
		}
		if ratelimit.IsQuotaExceeded(err) {
			// Every remaining school degrades the same way; the
			// memoized NotAvailable keeps it to one log line each.
			slog.Warn("transit quota exhausted, travel time unavailable")
		} else {
			slog.WithError(err).Warn("stop resolution failed")
		}
		return domain.NotAvailable, nil
	}
	if !found {
		slog.Warn("no stop found for school")
		return domain.NotAvailable, nil
	}

	duration, found, err := p.Planner.PlanTrip(ctx, originID, stop.ExternalID)
	if err != nil {
		if ctx.Err() != nil {
			return domain.NotAvailable, ctx.Err()
		}
		slog.WithError(err).Warn("trip query failed")
		return domain.NotAvailable, nil
	}
	if !found {
		slog.WithField("stop", stop.ExternalID).Warn("no itinerary found")
		return domain.NotAvailable, nil
	}

	minutes, err := resrobot.ParseISODuration(duration)
	if err != nil {
		slog.WithError(err).Warn("unparseable trip duration")
		return domain.NotAvailable, nil
	}
	return domain.Available(minutes), nil
}

func assembleRows(school domain.School, program string, detail *domain.ProgramDetail, travel domain.Minutes) []domain.OutputRow {
	rows := make([]domain.OutputRow, 0, len(detail.StudyPaths))
	for _, sp := range detail.StudyPaths {
		rows = append(rows, domain.OutputRow{
			SchoolName:      school.Name,
			SchoolLocation:  school.Location,
			Program:         program,
			AverageGrade:    detail.EducationStats.AverageGrade,
			FlowthroughRate: detail.EducationStats.FlowthroughRate,
			FemaleRatio:     detail.FemaleRatio,
			StudyPathName:   sp.Name,
			CompareNumber:   sp.CompareNumber,
			Min:             sp.Min,
			Median:          sp.Median,
			Admitted:        sp.Admitted,
			TravelTime:      travel,
		})
	}
	return rows
}
