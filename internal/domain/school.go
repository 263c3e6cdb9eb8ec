package domain

// School is one high school as returned by the catalog list endpoint.
// Immutable after fetch; workers only read it.
type School struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Location     string   `json:"location"` // district, e.g. "Södermalm"
	Municipality string   `json:"municipality"`
	Programs     []string `json:"programs"` // program codes, e.g. "NA", "SA"
}

// ProgramDetail is the per-(school, program) page from the catalog.
// Numeric fields are pointers because upstream omits values outside
// its encoding limits; nil means "not available", never zero.
type ProgramDetail struct {
	EducationStats EducationStats `json:"educationStats"`
	FemaleRatio    *float64       `json:"femaleRatio"`
	StudyPaths     []StudyPath    `json:"studyPaths"`
}

type EducationStats struct {
	AverageGrade    *float64 `json:"averageGrade"`
	FlowthroughRate *float64 `json:"flowthroughRate"`
}

// StudyPath is a named admission track within a program.
type StudyPath struct {
	Name          string   `json:"name"`
	CompareNumber *float64 `json:"compareNumber"`
	Min           *float64 `json:"min"`
	Median        *float64 `json:"median"`
	Admitted      *int     `json:"admitted"`
}

// StopCandidate is one hit from the transit stop search.
// Used transiently during resolution, never persisted.
type StopCandidate struct {
	ExternalID string
	Name       string
	Weight     int // disambiguation score; higher wins
}

// Minutes is a resolved travel time. Valid=false means the lookup
// ran and legitimately found nothing (stop unknown, no itinerary,
// quota spent); it is cached like any other result.
type Minutes struct {
	Value int
	Valid bool
}

// Available wraps a resolved minute count.
func Available(v int) Minutes { return Minutes{Value: v, Valid: true} }

// NotAvailable is the memoized "no travel time" outcome.
var NotAvailable = Minutes{}

// OutputRow is the flattened join of School, ProgramDetail (one per
// StudyPath) and the school's travel time. One row per study path.
type OutputRow struct {
	SchoolName      string
	SchoolLocation  string
	Program         string
	AverageGrade    *float64
	FlowthroughRate *float64
	FemaleRatio     *float64
	StudyPathName   string
	CompareNumber   *float64
	Min             *float64
	Median          *float64
	Admitted        *int
	TravelTime      Minutes
}
