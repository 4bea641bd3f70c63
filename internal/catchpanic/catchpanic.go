// Package catchpanic turns panics in job functions into errors, keeping the
// stack where the panic happened.
package catchpanic

import (
	"fmt"
	"runtime"

	"fknsrs.biz/p/ytmentions/internal/stackutil"
)

// PanicError is a recovered panic.
type PanicError struct {
	Value interface{}
	Stack []runtime.Frame
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}

	return nil
}

func Catch(fn func()) (err error) {
	defer func() {
		if ex := recover(); ex != nil {
			// skip the deferred function and runtime.gopanic
			err = &PanicError{Value: ex, Stack: stackutil.GetStack(50, 2)}
		}
	}()

	fn()

	return
}

func CatchErr1[T any](fn func() (T, error)) (T, error) {
	var res T
	var err error

	if err1 := Catch(func() { res, err = fn() }); err1 != nil {
		return res, err1
	}

	return res, err
}
