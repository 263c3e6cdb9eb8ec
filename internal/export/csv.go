package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"sync"

	"github.com/me97esn/gymnasieskolor/internal/domain"
)

// Missing scalar values are serialized as a literal token so they are
// unambiguous in the CSV (an empty cell could mean "empty string").
const notAvailable = "N/A"

// Column order is fixed; downstream spreadsheets key on it.
var header = []string{
	"school_name",
	"school_location",
	"program",
	"averageGrade",
	"flowthroughRate",
	"femaleRatio",
	"studyPath_name",
	"compareNumber",
	"min",
	"median",
	"admitted",
	"travel_time_minutes",
}

// Writer serializes OutputRows to CSV. It is safe for concurrent use:
// each WriteRows call writes its batch contiguously and flushes, so an
// interrupted run still leaves a valid partial file on disk.
type Writer struct {
	mu sync.Mutex
	cw *csv.Writer
}

// NewWriter writes the header immediately so even a run that dies
// before the first row produces a parseable file.
func NewWriter(w io.Writer) (*Writer, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return nil, err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}
	return &Writer{cw: cw}, nil
}

// WriteRows appends one batch of rows and flushes.
func (w *Writer) WriteRows(rows []domain.OutputRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range rows {
		if err := w.cw.Write(toRecord(r)); err != nil {
			return err
		}
	}
	w.cw.Flush()
	return w.cw.Error()
}

func toRecord(r domain.OutputRow) []string {
	return []string{
		r.SchoolName,
		r.SchoolLocation,
		r.Program,
		floatOrNA(r.AverageGrade),
		floatOrNA(r.FlowthroughRate),
		floatOrNA(r.FemaleRatio),
		r.StudyPathName,
		floatOrNA(r.CompareNumber),
		floatOrNA(r.Min),
		floatOrNA(r.Median),
		intOrNA(r.Admitted),
		minutesOrNA(r.TravelTime),
	}
}

func floatOrNA(v *float64) string {
	if v == nil {
		return notAvailable
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func intOrNA(v *int) string {
	if v == nil {
		return notAvailable
	}
	return strconv.Itoa(*v)
}

func minutesOrNA(m domain.Minutes) string {
	if !m.Valid {
		return notAvailable
	}
	return strconv.Itoa(m.Value)
}
