package templatefuncs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRelative(t *testing.T) {
	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

	type testCase struct {
		name   string
		t      time.Time
		output string
	}

	for _, tc := range []testCase{
		{"zero", time.Time{}, "never"},
		{"just now", now.Add(-time.Second * 2), "just now"},
		{"seconds", now.Add(-time.Second * 30), "30 seconds ago"},
		{"one minute", now.Add(-time.Minute), "1 minute ago"},
		{"hours", now.Add(-time.Hour * 3), "3 hours ago"},
		{"days", now.Add(-time.Hour * 50), "2 days ago"},
		{"future", now.Add(time.Minute * 10), "10 minutes from now"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)

			a.Equal(tc.output, Relative(now, tc.t))
		})
	}
}

func TestFormatSeconds(t *testing.T) {
	type testCase struct {
		input  float64
		output string
	}

	for _, tc := range []testCase{
		{0, "0:00"},
		{-3, "0:00"},
		{61.7, "1:01"},
		{3599, "59:59"},
		{3723, "1:02:03"},
	} {
		t.Run(tc.output, func(t *testing.T) {
			a := assert.New(t)

			a.Equal(tc.output, FormatSeconds(tc.input))
		})
	}
}

func TestURLWith(t *testing.T) {
	a := assert.New(t)

	a.Equal("/journal", string(URLWith("/journal", "$filter", "")))
	a.Equal("/journal?%24filter=Operation+eq+%27skip%27&%24skip=20", string(URLWith("/journal", "$filter", "Operation eq 'skip'", "$skip", 20)))
}
