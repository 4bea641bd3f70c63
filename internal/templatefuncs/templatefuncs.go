// Package templatefuncs holds the functions available to every page
// template.
package templatefuncs

import (
	"fmt"
	"html/template"
	"net/url"
	"reflect"
	"strings"
	"time"

	"fknsrs.biz/p/ytmentions/internal/stringutil"
)

func Funcs() template.FuncMap {
	return template.FuncMap{
		"slice_length": func(v interface{}) int {
			val := reflect.ValueOf(v)
			if val.Kind() != reflect.Slice {
				panic(fmt.Errorf("expected input to be a slice"))
			}
			return val.Len()
		},
		"first_of": func(a ...interface{}) string {
			for _, e := range a {
				if s := fmt.Sprintf("%v", e); s != "" {
					return s
				}
			}

			return ""
		},
		"format_time": func(t time.Time) string {
			if t.IsZero() {
				return "never"
			}

			return t.Format(time.RFC3339)
		},
		"format_time_null": func(t *time.Time) string {
			if t == nil {
				return ""
			}

			return t.Format(time.RFC3339)
		},
		"format_date_null": func(t *time.Time) string {
			if t == nil {
				return ""
			}

			return t.Format("2006-01-02")
		},
		"format_time_relative": func(t time.Time) string {
			return Relative(time.Now(), t)
		},
		"format_seconds": FormatSeconds,
		"count":          stringutil.Count,
		"plural":         stringutil.Plural,
		"join":           strings.Join,
		"add":            func(a, b int) int { return a + b },
		"contains_string": func(a []string, s string) bool {
			for _, e := range a {
				if e == s {
					return true
				}
			}

			return false
		},
		"make_map": func(args ...interface{}) map[string]interface{} {
			m := make(map[string]interface{})

			for i := 0; i < len(args)/2; i++ {
				kv := args[i*2]
				vv := args[i*2+1]

				k, ok := kv.(string)
				if !ok {
					panic(fmt.Errorf("key value should be string; was instead %T", kv))
				}

				m[k] = vv
			}

			return m
		},
		"make_string_list": func(items ...string) []string {
			return items
		},
		"url_with": URLWith,
	}
}

// URLWith builds a local link from a path and alternating query keys and
// values. Empty values are left out.
func URLWith(p string, args ...interface{}) template.URL {
	v := url.Values{}

	for i := 0; i+1 < len(args); i += 2 {
		k, ok := args[i].(string)
		if !ok {
			panic(fmt.Errorf("key value should be string; was instead %T", args[i]))
		}

		if s := fmt.Sprintf("%v", args[i+1]); s != "" {
			v.Set(k, s)
		}
	}

	if len(v) == 0 {
		return template.URL(p)
	}

	return template.URL(p + "?" + v.Encode())
}

// Relative describes how long ago t was, to the coarsest useful unit.
func Relative(now, t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	d := now.Sub(t)

	suffix := "ago"
	if d < 0 {
		d = -d
		suffix = "from now"
	}

	switch {
	case d < time.Second*5:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%s %s", stringutil.Count(int(d/time.Second), "second"), suffix)
	case d < time.Hour:
		return fmt.Sprintf("%s %s", stringutil.Count(int(d/time.Minute), "minute"), suffix)
	case d < time.Hour*24:
		return fmt.Sprintf("%s %s", stringutil.Count(int(d/time.Hour), "hour"), suffix)
	default:
		return fmt.Sprintf("%s %s", stringutil.Count(int(d/(time.Hour*24)), "day"), suffix)
	}
}

// FormatSeconds renders a media offset as h:mm:ss or m:ss.
func FormatSeconds(v float64) string {
	if v < 0 {
		v = 0
	}

	n := int(v)
	h, m, s := n/3600, (n/60)%60, n%60

	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}

	return fmt.Sprintf("%d:%02d", m, s)
}
