// Package sqltypes holds column types shared by the journal and job queue
// tables, and sets sorm up for sqlite.
package sqltypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"fknsrs.biz/p/sorm"
	"github.com/mattn/go-sqlite3"
)

// sqlite numbers $N placeholders by first appearance rather than by N, so
// sorm's statements have to use ?N.
func init() {
	sorm.SetParameterPrefix("?")
}

// TimeScanner reads a timestamp column that sqlite may hand back as text in
// any of the driver's timestamp formats. NULL scans to the zero time.
type TimeScanner struct {
	Value *time.Time
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}

	for _, format := range sqlite3.SQLiteTimestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("sqltypes.parseTime: %q does not match any timestamp format", s)
}

func (t *TimeScanner) Scan(src interface{}) error {
	switch src := src.(type) {
	case nil:
		*t.Value = time.Time{}
	case time.Time:
		*t.Value = src
	case string:
		v, err := parseTime(src)
		if err != nil {
			return fmt.Errorf("sqltypes.TimeScanner.Scan: %w", err)
		}
		*t.Value = v
	case []byte:
		v, err := parseTime(string(src))
		if err != nil {
			return fmt.Errorf("sqltypes.TimeScanner.Scan: %w", err)
		}
		*t.Value = v
	default:
		return fmt.Errorf("sqltypes.TimeScanner.Scan: could not scan input type of %T", src)
	}

	return nil
}

// JSONStringSlice is stored as a JSON array in a text column, so sqlite's
// json functions can query it. An empty slice is stored as [].
type JSONStringSlice []string

func (s JSONStringSlice) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}

	d, err := json.Marshal([]string(s))
	if err != nil {
		return nil, fmt.Errorf("sqltypes.JSONStringSlice.Value: %w", err)
	}

	return string(d), nil
}

func (s *JSONStringSlice) Scan(src interface{}) error {
	var d []byte

	switch src := src.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		d = src
	case string:
		d = []byte(src)
	default:
		return fmt.Errorf("sqltypes.JSONStringSlice.Scan: could not scan input type of %T", src)
	}

	var a []string
	if err := json.Unmarshal(d, &a); err != nil {
		return fmt.Errorf("sqltypes.JSONStringSlice.Scan: could not decode input as JSON: %w", err)
	}

	if len(a) == 0 {
		a = nil
	}

	*s = a

	return nil
}
