package resrobot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseISODuration(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "PT25M", want: 25},
		{in: "PT1H15M", want: 75},
		{in: "PT1H", want: 60},
		{in: "PT2H30M", want: 150},
		{in: "PT0M", want: 0},
		{in: "PT12M29S", want: 12},
		{in: "PT12M30S", want: 13},
		{in: "PT", wantErr: true}, // no component is an error, not zero
		{in: "", wantErr: true},
		{in: "25M", wantErr: true},
		{in: "P1DT2H", wantErr: true},
	}

	for _, tc := range cases {
		got, err := ParseISODuration(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}
