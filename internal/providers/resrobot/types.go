package resrobot

/* -------- /location.name -------- */

type locationResponse struct {
	StopLocationOrCoordLocation []locationEntry `json:"stopLocationOrCoordLocation"`
}

// locationEntry wraps either a StopLocation or a CoordLocation; only
// stops are useful for trip planning, coordinates are skipped.
type locationEntry struct {
	StopLocation *stopLocation `json:"StopLocation"`
}

type stopLocation struct {
	ExtID  string `json:"extId"`
	Name   string `json:"name"`
	Weight int    `json:"weight"`
}

/* -------- /trip -------- */

type tripResponse struct {
	Trips []trip `json:"Trip"`
}

type trip struct {
	Duration string `json:"duration"`
}
