package metrics

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"fknsrs.biz/p/ytmentions/internal/processing"
)

func TestObserveCommand(t *testing.T) {
	a := assert.New(t)

	before := testutil.ToFloat64(commandsTotal.WithLabelValues("skip", "ok"))
	ObserveCommand("skip", "ok")
	ObserveCommand("skip", "ok")
	a.Equal(before+2, testutil.ToFloat64(commandsTotal.WithLabelValues("skip", "ok")))
}

func TestResultOf(t *testing.T) {
	a := assert.New(t)

	a.Equal("ok", resultOf(nil))
	a.Equal("transport_error", resultOf(fmt.Errorf("x: %w", processing.ErrTransport)))
	a.Equal("rejected", resultOf(&processing.RejectedError{Operation: "ListVideos"}))
	a.Equal("error", resultOf(fmt.Errorf("other")))
}
