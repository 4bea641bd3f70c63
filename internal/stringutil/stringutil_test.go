package stringutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var caseConversionTests = []struct {
	pascalCase string
	snakeCase  string
}{
	{"ID", "id"},
	{"VideoID", "video_id"},
	{"SessionID", "session_id"},
	{"CreatedAt", "created_at"},
	{"VideoCount", "video_count"},
	{"Operator", "operator"},
	{"QueueName", "queue_name"},
	{"Payload", "payload"},
	{"RunAfter", "run_after"},
	{"FailureDelay", "failure_delay"},
	{"AttemptsRemaining", "attempts_remaining"},
	{"ReservedAt", "reserved_at"},
	{"ReservedUntil", "reserved_until"},
	{"FinishedAt", "finished_at"},
	{"ErrorMessages", "error_messages"},
	{"VideoIDs", "video_ids"},
	{"IDs", "ids"},
	{"SelectedIDsCount", "selected_ids_count"},
	{"HTTPServer", "http_server"},
	{"ServiceURL", "service_url"},
}

var pluralTests = []struct {
	singular string
	plural   string
}{
	{"ID", "IDs"},
	{"id", "ids"},
	{"VideoID", "VideoIDs"},
	{"video", "videos"},
	{"Status", "Statuses"},
	{"box", "boxes"},
	// special cases
	{"Fish", "Fish"},
	{"fish", "fish"},
	{"Sheep", "Sheep"},
	{"sheep", "sheep"},
}

func TestPascalToSnake(t *testing.T) {
	for _, tc := range caseConversionTests {
		t.Run(tc.pascalCase, func(t *testing.T) {
			a := assert.New(t)
			a.Equal(tc.snakeCase, PascalToSnake(tc.pascalCase))
		})
	}
}

func BenchmarkPascalToSnake(b *testing.B) {
	for _, tc := range caseConversionTests {
		b.Run(tc.pascalCase, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				PascalToSnake(tc.pascalCase)
			}
		})
	}
}

func TestPlural(t *testing.T) {
	for _, tc := range pluralTests {
		t.Run(tc.singular, func(t *testing.T) {
			a := assert.New(t)
			a.Equal(tc.plural, Plural(tc.singular))
		})
	}
}

func BenchmarkPlural(b *testing.B) {
	for _, tc := range pluralTests {
		b.Run(tc.singular, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				Plural(tc.singular)
			}
		})
	}
}

func TestCount(t *testing.T) {
	a := assert.New(t)

	a.Equal("0 videos", Count(0, "video"))
	a.Equal("1 video", Count(1, "video"))
	a.Equal("3 videos", Count(3, "video"))
}

func TestLooksTrue(t *testing.T) {
	a := assert.New(t)

	a.True(LooksTrue("Yes"))
	a.True(LooksTrue("on"))
	a.False(LooksTrue("no"))
	a.False(LooksTrue(""))
}
