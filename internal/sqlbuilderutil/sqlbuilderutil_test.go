package sqlbuilderutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type sampleAction struct {
	ID         int `sql:",table:sample_actions"`
	CreatedAt  time.Time
	VideoIDs   []string `sql:"video_ids"`
	VideoCount int
	Scratch    string `sql:"-"`
}

func TestMakeTable(t *testing.T) {
	a := assert.New(t)

	table, err := MakeTable(sampleAction{})
	if !a.NoError(err) {
		return
	}

	a.Equal([]string{"created_at", "id", "video_count", "video_ids"}, table.ColumnNames())

	for _, name := range []string{"CreatedAt", "createdat", "created_at", "CREATEDAT", "VideoIDs", "video_ids"} {
		_, ok := table.Column(name)
		a.True(ok, name)
	}

	for _, name := range []string{"Scratch", "scratch", "nope"} {
		_, ok := table.Column(name)
		a.False(ok, name)
	}

	a.Panics(func() { table.C("nope") })
	a.NotPanics(func() { table.C("VideoCount") })
}
