package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var transitionTests = []struct {
	from, to RawStatus
	ok       bool
	client   bool
}{
	{StatusPending, StatusPending, true, false},
	{StatusPending, StatusSelected, true, true},
	{StatusPending, StatusSkipped, true, true},
	{StatusPending, StatusProcessing, false, false},
	{StatusPending, StatusProcessed, false, false},
	{StatusSelected, StatusProcessing, true, false},
	{StatusSelected, StatusProcessed, false, false},
	{StatusSelected, StatusSkipped, false, false},
	{StatusSelected, StatusPending, false, false},
	{StatusProcessing, StatusProcessed, true, false},
	{StatusProcessing, StatusSkipped, true, false},
	{StatusProcessing, StatusSelected, false, false},
	{StatusProcessed, StatusPending, false, false},
	{StatusProcessed, StatusSelected, false, false},
	{StatusSkipped, StatusSelected, false, false},
	{StatusSkipped, StatusPending, false, false},
}

func TestCanTransition(t *testing.T) {
	for _, tc := range transitionTests {
		t.Run(string(tc.from)+"_to_"+string(tc.to), func(t *testing.T) {
			a := assert.New(t)
			a.Equal(tc.ok, CanTransition(tc.from, tc.to))
			a.Equal(tc.client, CanClientTransition(tc.from, tc.to))
		})
	}
}

func TestCanTransitionUnknown(t *testing.T) {
	a := assert.New(t)

	a.False(CanTransition("", StatusPending))
	a.False(CanTransition("archived", StatusPending))
	a.False(IsKnownStatus("archived"))
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	a := assert.New(t)

	for _, from := range RawStatuses {
		if !from.IsTerminal() {
			continue
		}

		for _, to := range RawStatuses {
			if to == from {
				continue
			}

			a.False(CanTransition(from, to), "%s -> %s", from, to)
			a.True(IsServerReset(from, to), "%s -> %s", from, to)
		}
	}
}

func TestIsServerReset(t *testing.T) {
	a := assert.New(t)

	a.False(IsServerReset("", StatusSelected))
	a.False(IsServerReset(StatusPending, StatusPending))
	a.False(IsServerReset(StatusSelected, StatusProcessing))
	a.True(IsServerReset(StatusSelected, StatusPending))
	a.True(IsServerReset(StatusProcessed, StatusPending))
}

func TestRawStatusUnmarshalText(t *testing.T) {
	a := assert.New(t)

	var s RawStatus
	a.NoError(s.UnmarshalText([]byte("selected")))
	a.Equal(StatusSelected, s)

	a.NoError(s.UnmarshalText(nil))
	a.Equal(RawStatus(""), s)

	a.Error(s.UnmarshalText([]byte("archived")))
}

func TestProcessingOptionsValid(t *testing.T) {
	a := assert.New(t)

	o := DefaultProcessingOptions()
	a.True(o.Valid())
	a.Equal([]string{"mr", "hi", "en"}, o.Languages)

	o.FuzzyThreshold = 1.5
	a.False(o.Valid())

	o.FuzzyThreshold = -0.1
	a.False(o.Valid())
}
