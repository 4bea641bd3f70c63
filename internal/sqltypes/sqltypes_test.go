package sqltypes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeScanner(t *testing.T) {
	want := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)

	type testCase struct {
		name string
		src  interface{}
		out  time.Time
	}

	for _, tc := range []testCase{
		{"time", want, want},
		{"nil", nil, time.Time{}},
		{"sqlite text", "2024-06-01 12:30:00+00:00", want},
		{"rfc3339 bytes", []byte("2024-06-01T12:30:00Z"), want},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)

			var v time.Time
			a.NoError((&TimeScanner{Value: &v}).Scan(tc.src))
			a.True(tc.out.Equal(v), "%s != %s", tc.out, v)
		})
	}
}

func TestTimeScannerErrors(t *testing.T) {
	a := assert.New(t)

	var v time.Time
	a.Error((&TimeScanner{Value: &v}).Scan("yesterday"))
	a.Error((&TimeScanner{Value: &v}).Scan(42))
}

func TestJSONStringSlice(t *testing.T) {
	a := assert.New(t)

	v, err := JSONStringSlice(nil).Value()
	a.NoError(err)
	a.Equal("[]", v)

	v, err = JSONStringSlice{"a", "b"}.Value()
	a.NoError(err)
	a.Equal(`["a","b"]`, v)

	var s JSONStringSlice
	a.NoError(s.Scan(`["x"]`))
	a.Equal(JSONStringSlice{"x"}, s)

	a.NoError(s.Scan([]byte("[]")))
	a.Nil(s)

	a.Error(s.Scan("{"))
	a.Error(s.Scan(3))
}
