package ednia

import "github.com/me97esn/gymnasieskolor/internal/domain"

/* -------- Requests -------- */

// recommendRequest is the POST body for /recommend. Field values match
// what the ednia.se web client sends; admission points 0..340 spans
// the whole grading scale, so the filter is effectively "everything".
type recommendRequest struct {
	Offset int             `json:"offset"`
	Take   int             `json:"take"`
	Filter recommendFilter `json:"filter"`
}

type recommendFilter struct {
	Projection         string   `json:"projection"`
	Municipality       string   `json:"municipality"`
	Query              string   `json:"query"`
	Programs           []string `json:"programs"`
	AdmissionPointsMin int      `json:"admissionPointsMin"`
	AdmissionPointsMax int      `json:"admissionPointsMax"`
}

/* -------- Responses -------- */

// SchoolPage is one page of the school list.
type SchoolPage struct {
	Schools    []domain.School `json:"result"`
	HasMore    bool            `json:"hasMore"`
	NextOffset int             `json:"nextOffset"`
}

type programPageResponse struct {
	ProgramPage *domain.ProgramDetail `json:"programPage"`
}
