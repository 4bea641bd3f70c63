package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fknsrs.biz/p/ytmentions/internal/model"
)

func page() []model.VideoRecord {
	return []model.VideoRecord{
		{VideoID: "A", RawStatus: model.StatusPending},
		{VideoID: "B", RawStatus: model.StatusPending},
		{VideoID: "C", RawStatus: model.StatusSelected},
		{VideoID: "D", RawStatus: model.StatusProcessed},
		{VideoID: "E", RawStatus: model.StatusPending},
	}
}

func TestAddOnlyPending(t *testing.T) {
	a := assert.New(t)

	known := StatusMap{
		"A": model.StatusPending,
		"B": model.StatusSelected,
		"C": model.StatusSkipped,
	}

	s := New()
	added := s.Add([]string{"A", "B", "C", "Z"}, known)

	a.Equal([]string{"A"}, added)
	a.Equal([]string{"A"}, s.IDs())
}

func TestAddNeverAdmitsNonPending(t *testing.T) {
	for _, st := range model.RawStatuses {
		t.Run(string(st), func(t *testing.T) {
			a := assert.New(t)

			s := New()
			s.Add([]string{"A"}, StatusMap{"A": st})

			a.Equal(st == model.StatusPending, s.Contains("A"))
		})
	}
}

func TestAddStaleSelectedLeavesSetUnchanged(t *testing.T) {
	a := assert.New(t)

	s := New()
	s.Add([]string{"B"}, StatusMap{"B": model.StatusPending})

	before := s.IDs()
	added := s.Add([]string{"A"}, StatusMap{"A": model.StatusSelected})

	a.Empty(added)
	a.Equal(before, s.IDs())
}

func TestAddNilLookup(t *testing.T) {
	a := assert.New(t)

	s := New()
	a.Empty(s.Add([]string{"A"}, nil))
	a.Equal(0, s.Len())
}

func TestSelectAllEligibleOnPageIdempotent(t *testing.T) {
	a := assert.New(t)

	s := New()

	first := s.SelectAllEligibleOnPage(page())
	a.Equal([]string{"A", "B", "E"}, first)
	once := s.IDs()

	second := s.SelectAllEligibleOnPage(page())
	a.Empty(second)
	a.Equal(once, s.IDs())
}

func TestRemoveReplaceClear(t *testing.T) {
	a := assert.New(t)

	known := StatusMap{
		"A": model.StatusPending,
		"B": model.StatusPending,
		"C": model.StatusPending,
		"D": model.StatusSelected,
	}

	s := New()
	s.Add([]string{"A", "B"}, known)

	a.Equal([]string{"B"}, s.Remove([]string{"B", "Q"}))
	a.Equal([]string{"A"}, s.IDs())

	s.Replace([]string{"C", "D"}, known)
	a.Equal([]string{"C"}, s.IDs())

	a.Equal(1, s.Clear())
	a.Equal(0, s.Len())
}

func TestPrune(t *testing.T) {
	a := assert.New(t)

	s := New()
	s.Add([]string{"A", "B", "C"}, StatusMap{
		"A": model.StatusPending,
		"B": model.StatusPending,
		"C": model.StatusPending,
	})

	removed := s.Prune(StatusMap{
		"A": model.StatusSelected,
		"B": model.StatusPending,
	})

	a.Equal([]string{"A"}, removed)
	a.Equal([]string{"B", "C"}, s.IDs())
}

func TestRestore(t *testing.T) {
	a := assert.New(t)

	s := New()
	s.Restore([]string{"A", "", "B"})
	a.Equal([]string{"A", "B"}, s.IDs())

	s.Prune(StatusMap{"A": model.StatusSkipped})
	a.Equal([]string{"B"}, s.IDs())
}
