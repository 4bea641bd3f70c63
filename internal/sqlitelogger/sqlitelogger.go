// Package sqlitelogger wraps the sqlite driver so statements issued against
// the journal and job queue database can be logged with the call site that
// issued them.
package sqlitelogger

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"
	"unicode"

	proxy "github.com/shogo82148/go-sql-proxy"
	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/ytmentions/internal/ctxclock"
	"fknsrs.biz/p/ytmentions/internal/ctxlogger"
	"fknsrs.biz/p/ytmentions/internal/metrics"
	"fknsrs.biz/p/ytmentions/internal/stackutil"
)

var (
	ErrCancelLogging = fmt.Errorf("cancel logging")
)

// Stats describes one driver call. Kind is one of prepare, exec, query,
// tx_begin, tx_commit or tx_rollback.
type Stats struct {
	Kind         string
	Start        time.Time
	Duration     time.Duration
	Stack        []runtime.Frame
	RowsAffected int64

	query     string
	queryText string
	queryArgs []driver.NamedValue
}

// Query is the statement with its arguments substituted, for reading only.
func (s *Stats) Query() string {
	if s.query == "" && s.queryText != "" {
		s.query = printQuery(s.queryText, s.queryArgs)
	}
	return s.query
}

type Filter interface {
	PreCollection(ctx context.Context, stats *Stats) error
	PreLogging(ctx context.Context, stats *Stats) error
	HideStackFrame(ctx context.Context, index int, frame runtime.Frame) (bool, error)
}

type logger struct {
	filters []Filter
}

func (l *logger) begin(ctx context.Context, kind string, stmt *proxy.Stmt, args []driver.NamedValue) (interface{}, error) {
	now, err := ctxclock.Now(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Kind:  kind,
		Start: now,
		Stack: stackutil.GetStack(100, 2),
	}

	if stmt != nil {
		stats.queryText = stmt.QueryString
		stats.queryArgs = args
	}

	for _, filter := range l.filters {
		if err := filter.PreCollection(ctx, stats); err != nil {
			if errors.Is(err, ErrCancelLogging) {
				return nil, nil
			}

			return nil, err
		}
	}

	return stats, nil
}

func (l *logger) end(ctx context.Context, upperError error, qctx interface{}) error {
	if upperError != nil {
		return upperError
	}

	stats, ok := qctx.(*Stats)
	if !ok || stats == nil {
		return nil
	}

	now, err := ctxclock.Now(ctx)
	if err != nil {
		return err
	}

	stats.Duration = now.Sub(stats.Start)

	metrics.ObserveQuery(stats.Kind, stats.Duration)

	for _, filter := range l.filters {
		if err := filter.PreLogging(ctx, stats); err != nil {
			if errors.Is(err, ErrCancelLogging) {
				return nil
			}

			return err
		}
	}

	prefix := "sql." + stats.Kind

	fields := logrus.Fields{
		prefix + ".start":    stats.Start.Format(time.RFC3339),
		prefix + ".duration": stats.Duration,
	}

	if q := stats.Query(); q != "" {
		fields[prefix+".content"] = q
	}
	if stats.Kind == "exec" {
		fields[prefix+".rows_affected"] = stats.RowsAffected
	}

	n := 0

loop:
	for index, frame := range stats.Stack {
		for _, filter := range l.filters {
			hide, err := filter.HideStackFrame(ctx, index, frame)
			if err != nil {
				return err
			}
			if hide {
				continue loop
			}
		}

		fields[fmt.Sprintf("%s.stack.%02d", prefix, n)] = stackutil.FormatStackFrame(frame)
		n++
	}

	ctxlogger.GetLogger(ctx).WithFields(fields).Info("sql " + strings.ReplaceAll(stats.Kind, "_", " "))

	return nil
}

func New(wrapped driver.Driver, filters ...Filter) driver.Driver {
	l := &logger{filters: filters}

	return proxy.NewProxyContext(wrapped, &proxy.HooksContext{
		PrePrepare: func(ctx context.Context, stmt *proxy.Stmt) (interface{}, error) {
			return l.begin(ctx, "prepare", stmt, nil)
		},
		PostPrepare: func(ctx context.Context, qctx interface{}, stmt *proxy.Stmt, err error) error {
			return l.end(ctx, err, qctx)
		},
		PreExec: func(ctx context.Context, stmt *proxy.Stmt, args []driver.NamedValue) (interface{}, error) {
			return l.begin(ctx, "exec", stmt, args)
		},
		PostExec: func(ctx context.Context, qctx interface{}, stmt *proxy.Stmt, args []driver.NamedValue, res driver.Result, err error) error {
			if stats, ok := qctx.(*Stats); ok && stats != nil && res != nil {
				if n, err := res.RowsAffected(); err == nil {
					stats.RowsAffected = n
				}
			}

			return l.end(ctx, err, qctx)
		},
		PreQuery: func(ctx context.Context, stmt *proxy.Stmt, args []driver.NamedValue) (interface{}, error) {
			return l.begin(ctx, "query", stmt, args)
		},
		PostQuery: func(ctx context.Context, qctx interface{}, stmt *proxy.Stmt, args []driver.NamedValue, _ driver.Rows, err error) error {
			return l.end(ctx, err, qctx)
		},
		PreBegin: func(ctx context.Context, conn *proxy.Conn) (interface{}, error) {
			return l.begin(ctx, "tx_begin", nil, nil)
		},
		PostBegin: func(ctx context.Context, qctx interface{}, conn *proxy.Conn, err error) error {
			return l.end(ctx, err, qctx)
		},
		PreCommit: func(ctx context.Context, tx *proxy.Tx) (interface{}, error) {
			return l.begin(ctx, "tx_commit", nil, nil)
		},
		PostCommit: func(ctx context.Context, qctx interface{}, tx *proxy.Tx, err error) error {
			return l.end(ctx, err, qctx)
		},
		PreRollback: func(ctx context.Context, tx *proxy.Tx) (interface{}, error) {
			return l.begin(ctx, "tx_rollback", nil, nil)
		},
		PostRollback: func(ctx context.Context, qctx interface{}, tx *proxy.Tx, err error) error {
			return l.end(ctx, err, qctx)
		},
	})
}

// BasicFilter covers the usual needs: only slow statements, no noise from
// the job queue's polling, and no frames from middleware.
type BasicFilter struct {
	LogSlowerThan            time.Duration
	IgnorePackageStackFrames []string
	IgnoreFunctionQueries    []string
}

func (b *BasicFilter) PreCollection(ctx context.Context, stats *Stats) error {
	for _, frame := range stats.Stack {
		for _, functionName := range b.IgnoreFunctionQueries {
			if frame.Function == functionName {
				return ErrCancelLogging
			}
		}
	}

	return nil
}

func (b *BasicFilter) PreLogging(ctx context.Context, stats *Stats) error {
	if b.LogSlowerThan != 0 && stats.Duration < b.LogSlowerThan {
		return ErrCancelLogging
	}

	return nil
}

func (b *BasicFilter) HideStackFrame(ctx context.Context, index int, frame runtime.Frame) (bool, error) {
	for _, packageName := range b.IgnorePackageStackFrames {
		if strings.HasPrefix(frame.Function, packageName+".") {
			return true, nil
		}
	}

	return false, nil
}

// printQuery substitutes arguments for sqlite placeholders: bare ?, numbered
// ?N and $N. Placeholders inside quoted strings are left alone.
func printQuery(query string, args []driver.NamedValue) string {
	var b strings.Builder

	next := 0
	var quote rune

	rs := []rune(query)

	for i := 0; i < len(rs); i++ {
		r := rs[i]

		if quote != 0 {
			if r == quote {
				quote = 0
			}
			b.WriteRune(r)
			continue
		}

		switch {
		case r == '\'' || r == '"':
			quote = r
			b.WriteRune(r)
		case r == '?' || r == '$':
			j := i + 1
			for j < len(rs) && rs[j] >= '0' && rs[j] <= '9' {
				j++
			}

			idx := -1
			if j > i+1 {
				if n, err := strconv.Atoi(string(rs[i+1 : j])); err == nil {
					idx = n - 1
				}
			} else if r == '?' {
				idx = next
				next++
			}

			if idx < 0 || idx >= len(args) {
				b.WriteString(string(rs[i:j]))
			} else {
				b.WriteString(formatValue(args[idx].Value))
			}

			i = j - 1
		case unicode.IsSpace(r):
			if b.Len() > 0 && !strings.HasSuffix(b.String(), " ") {
				b.WriteRune(' ')
			}
		default:
			b.WriteRune(r)
		}
	}

	return strings.TrimSpace(b.String())
}

// formatValue renders a value already converted by the driver.
func formatValue(v driver.Value) string {
	switch e := v.(type) {
	case nil:
		return "NULL"
	case bool:
		return strconv.FormatBool(e)
	case int64:
		return strconv.FormatInt(e, 10)
	case float64:
		return strconv.FormatFloat(e, 'f', -1, 64)
	case time.Time:
		return "'" + e.Format(time.RFC3339Nano) + "'"
	case []byte:
		return quoted(string(e))
	case string:
		return quoted(e)
	default:
		return quoted(fmt.Sprintf("%v", e))
	}
}

func quoted(s string) string {
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return fmt.Sprintf("[%d bytes of binary data]", len(s))
		}
	}

	if len(s) > 200 {
		s = s[:200] + "..."
	}

	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
