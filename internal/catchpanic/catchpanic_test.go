package catchpanic

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errProcessing = fmt.Errorf("processing service unavailable")

func explode() {
	panic(errProcessing)
}

func TestCatchError(t *testing.T) {
	a := assert.New(t)

	err := Catch(explode)
	a.ErrorIs(err, errProcessing)
	a.EqualError(err, "panic: processing service unavailable")

	var pe *PanicError
	if a.True(errors.As(err, &pe)) && a.NotEmpty(pe.Stack) {
		found := false
		for _, frame := range pe.Stack {
			if strings.HasSuffix(frame.Function, "catchpanic.explode") {
				found = true
			}
		}
		a.True(found, "stack should include the panicking function")
	}
}

func TestCatchString(t *testing.T) {
	a := assert.New(t)

	err := Catch(func() { panic("test_error") })
	a.EqualError(err, "panic: test_error")
	a.Nil(errors.Unwrap(err))
}

func TestCatchNothing(t *testing.T) {
	a := assert.New(t)

	a.NoError(Catch(func() {}))
}

func TestCatchErr1(t *testing.T) {
	type testCase struct {
		name   string
		fn     func() (string, error)
		output string
		err    string
	}

	for _, tc := range []testCase{
		{"value", func() (string, error) { return "checked 1 video", nil }, "checked 1 video", ""},
		{"error", func() (string, error) { return "", fmt.Errorf("test_error") }, "", "test_error"},
		{"panic", func() (string, error) { panic("test_error") }, "", "panic: test_error"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)

			output, err := CatchErr1(tc.fn)
			a.Equal(tc.output, output)
			if tc.err == "" {
				a.NoError(err)
			} else {
				a.EqualError(err, tc.err)
			}
		})
	}
}
