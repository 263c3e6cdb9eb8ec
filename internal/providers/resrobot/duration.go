package resrobot

import (
	"fmt"
	"regexp"
	"strconv"
)

var durationRe = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// ParseISODuration converts an ISO 8601 duration as ResRobot emits it
// (PT25M, PT1H15M, PT1H) to whole minutes. Seconds round to nearest.
// A duration with no component at all is an error, not a silent zero.
func ParseISODuration(s string) (int, error) {
	m := durationRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("resrobot: malformed duration %q", s)
	}
	if m[1] == "" && m[2] == "" && m[3] == "" {
		return 0, fmt.Errorf("resrobot: empty duration %q", s)
	}
	hours, _ := strconv.Atoi(zeroIfEmpty(m[1]))
	minutes, _ := strconv.Atoi(zeroIfEmpty(m[2]))
	seconds, _ := strconv.Atoi(zeroIfEmpty(m[3]))
	total := hours*60 + minutes
	if seconds >= 30 {
		total++
	}
	return total, nil
}

func zeroIfEmpty(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
