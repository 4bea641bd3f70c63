package sqlitelogger

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func args(values ...driver.Value) []driver.NamedValue {
	a := make([]driver.NamedValue, len(values))
	for i, v := range values {
		a[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return a
}

func TestPrintQuery(t *testing.T) {
	type testCase struct {
		name   string
		query  string
		args   []driver.NamedValue
		output string
	}

	for _, tc := range []testCase{
		{"no args", "select 1", nil, "select 1"},
		{"bare", "select * from jobs where queue_name = ? and id > ?", args("transcript_check", int64(4)), "select * from jobs where queue_name = 'transcript_check' and id > 4"},
		{"numbered", "update jobs set finished_at = ?2 where id = ?1", args(int64(7), nil), "update jobs set finished_at = NULL where id = 7"},
		{"dollar", "select $1, $2", args(true, 1.5), "select true, 1.5"},
		{"quoted placeholder", "select '?' where a = ?", args("x"), "select '?' where a = 'x'"},
		{"escaped quote", "select ?", args("it's"), "select 'it''s'"},
		{"missing arg", "select ?, ?", args(int64(1)), "select 1, ?"},
		{"whitespace", "select\n\t  *\n from   triage_actions", nil, "select * from triage_actions"},
		{"time", "select ?", args(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)), "select '2024-06-01T12:00:00Z'"},
		{"binary", "select ?", args([]byte{0, 1, 2}), "select [3 bytes of binary data]"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)

			a.Equal(tc.output, printQuery(tc.query, tc.args))
		})
	}
}

func TestBasicFilter(t *testing.T) {
	a := assert.New(t)

	f := &BasicFilter{LogSlowerThan: time.Millisecond * 10}

	a.ErrorIs(f.PreLogging(context.Background(), &Stats{Duration: time.Millisecond}), ErrCancelLogging)
	a.NoError(f.PreLogging(context.Background(), &Stats{Duration: time.Millisecond * 20}))
}
