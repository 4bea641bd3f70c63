// Package logrusstackhook attaches the calling stack to log entries at the
// levels it is configured for.
package logrusstackhook

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/ytmentions/internal/stackutil"
)

// FilterFunc reports whether a frame should be left out.
type FilterFunc func(index int, frame runtime.Frame) bool

func HidePathsContaining(values []string) FilterFunc {
	return func(index int, frame runtime.Frame) bool {
		for _, value := range values {
			if strings.Contains(frame.File, value) {
				return true
			}
		}

		return false
	}
}

func HideFunctionsContaining(values []string) FilterFunc {
	return func(index int, frame runtime.Frame) bool {
		for _, value := range values {
			if strings.Contains(frame.Function, value) {
				return true
			}
		}

		return false
	}
}

func Any(a ...FilterFunc) FilterFunc {
	return func(index int, frame runtime.Frame) bool {
		for _, fn := range a {
			if fn(index, frame) {
				return true
			}
		}

		return false
	}
}

var (
	DefaultLevels = []logrus.Level{logrus.DebugLevel, logrus.TraceLevel}
	DefaultFilter = Any(
		HidePathsContaining([]string{"github.com/sirupsen/logrus"}),
		HideFunctionsContaining([]string{"logrusstackhook.(*StackHook)."}),
	)
)

const stackDepth = 25

type StackHook struct {
	levels []logrus.Level
	filter FilterFunc
}

// NewStackHook adds stack.NN fields to entries at levels. Nil arguments mean
// DefaultLevels and DefaultFilter.
func NewStackHook(levels []logrus.Level, filter FilterFunc) *StackHook {
	if levels == nil {
		levels = DefaultLevels
	}

	if filter == nil {
		filter = DefaultFilter
	}

	return &StackHook{levels: levels, filter: filter}
}

func (h *StackHook) Levels() []logrus.Level { return h.levels }

func (h *StackHook) Fire(e *logrus.Entry) error {
	for k, v := range stackutil.Fields("stack", stackutil.GetStack(stackDepth, 0), h.filter) {
		e.Data[k] = v
	}

	return nil
}
