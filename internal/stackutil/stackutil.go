// Package stackutil captures call stacks for log entries.
package stackutil

import (
	"fmt"
	"runtime"
	"strings"
)

// GetStack returns up to depth frames, starting skip frames above the
// caller of GetStack.
func GetStack(depth, skip int) []runtime.Frame {
	pc := make([]uintptr, depth)

	// skip runtime.Callers and GetStack itself
	n := runtime.Callers(skip+2, pc)
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pc[:n])

	var a []runtime.Frame

	for {
		frame, more := frames.Next()

		a = append(a, frame)

		if !more {
			break
		}
	}

	return a
}

// FormatStackFrame renders a frame as "file:line: function", with the file
// path cut back to start at its module path where one is recognisable.
func FormatStackFrame(f runtime.Frame) string {
	return fmt.Sprintf("%s:%d: %s", shortFile(f), f.Line, f.Function)
}

func shortFile(f runtime.Frame) string {
	// module cache paths look like .../pkg/mod/github.com/x/y@v1.2.3/file.go
	if i := strings.Index(f.File, "/pkg/mod/"); i != -1 {
		return f.File[i+len("/pkg/mod/"):]
	}

	// the function name starts with the package path; keep that much of the
	// file path
	pkg := f.Function
	if i := strings.LastIndex(pkg, "/"); i != -1 {
		if j := strings.Index(pkg[i:], "."); j != -1 {
			pkg = pkg[:i+j]
		}
	} else if j := strings.Index(pkg, "."); j != -1 {
		pkg = pkg[:j]
	}

	if pkg != "" {
		if i := strings.LastIndex(f.File, "/"+pkg+"/"); i != -1 {
			return f.File[i+1:]
		}
	}

	return f.File
}

// Fields numbers the frames that hide doesn't reject as prefix.00,
// prefix.01 and so on. A nil hide keeps every frame.
func Fields(prefix string, frames []runtime.Frame, hide func(index int, frame runtime.Frame) bool) map[string]interface{} {
	m := make(map[string]interface{})

	n := 0

	for i, frame := range frames {
		if hide != nil && hide(i, frame) {
			continue
		}

		m[fmt.Sprintf("%s.%02d", prefix, n)] = FormatStackFrame(frame)
		n++
	}

	return m
}
