package logrusstackhook

import (
	"runtime"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

func TestStackHook(t *testing.T) {
	a := assert.New(t)

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	logger.AddHook(NewStackHook(nil, nil))

	logger.Info("session created")
	if e := hook.LastEntry(); a.NotNil(e) {
		a.NotContains(e.Data, "stack.00")
	}

	logger.Debug("refreshing catalog")
	if e := hook.LastEntry(); a.NotNil(e) {
		if top, ok := e.Data["stack.00"].(string); a.True(ok) {
			a.True(strings.HasSuffix(top, "logrusstackhook.TestStackHook"), top)
		}
	}
}

func TestAny(t *testing.T) {
	a := assert.New(t)

	fn := Any(HidePathsContaining([]string{"/vendor/"}), HideFunctionsContaining([]string{"negroni"}))

	for _, tc := range []struct {
		file, function string
		hidden         bool
	}{
		{"/src/vendor/x.go", "x.X", true},
		{"/src/main.go", "github.com/urfave/negroni/v2.(*Negroni).ServeHTTP", true},
		{"/src/main.go", "main.main", false},
	} {
		a.Equal(tc.hidden, fn(0, runtime.Frame{File: tc.file, Function: tc.function}), tc.function)
	}
}
