package ctxclock

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"

	"fknsrs.biz/p/ytmentions/internal/ctxlogger"
)

func TestNowWithoutClock(t *testing.T) {
	a := assert.New(t)

	_, err := Now(context.Background())
	a.ErrorIs(err, ErrNoClock)

	ctx := WithClock(context.Background(), nil)
	_, err = Now(ctx)
	a.NoError(err)
}

func TestTestClock(t *testing.T) {
	a := assert.New(t)

	t1 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	boom := fmt.Errorf("boom")

	c := NewTestClock([]TestClockResult{{Time: t1}, {Error: boom}})

	v, err := c.Now()
	a.NoError(err)
	a.Equal(t1, v)

	_, err = c.Now()
	a.ErrorIs(err, boom)

	_, err = c.Now()
	a.ErrorIs(err, ErrNoTimesLeft)
}

func TestManualScheduler(t *testing.T) {
	a := assert.New(t)

	s := NewManualScheduler()

	var ran []string

	first := s.AfterFunc(time.Second, func() { ran = append(ran, "first") })
	s.AfterFunc(time.Second*2, func() {
		ran = append(ran, "second")
		s.AfterFunc(time.Second*3, func() { ran = append(ran, "third") })
	})

	a.Equal([]time.Duration{time.Second, time.Second * 2}, s.Pending())

	a.True(first.Stop())
	a.False(first.Stop())

	a.Equal(1, s.FireAll())
	a.Equal([]string{"second"}, ran)
	a.Equal([]time.Duration{time.Second * 3}, s.Pending())

	a.Equal(1, s.FireAll())
	a.Equal(0, s.FireAll())
	a.Equal([]string{"second", "third"}, ran)
}

func TestAddLoggerHooks(t *testing.T) {
	a := assert.New(t)

	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	logger, hook := test.NewNullLogger()

	r := httptest.NewRequest(http.MethodGet, "/videos", nil)

	ctxlogger.Register(logger)(httptest.NewRecorder(), r, func(rw http.ResponseWriter, r *http.Request) {
		Register(NewStaticClock(start))(rw, r, func(rw http.ResponseWriter, r *http.Request) {
			AddLoggerHooks()(rw, r, func(rw http.ResponseWriter, r *http.Request) {
				ctxlogger.Log()(rw, r, func(rw http.ResponseWriter, r *http.Request) {})
			})
		})
	})

	if e := hook.LastEntry(); a.NotNil(e) {
		a.Equal("2024-06-01T12:00:00Z", e.Data["http.request_start"])
		a.Equal("2024-06-01T12:00:00Z", e.Data["http.response_end"])
	}
}
