package bboltstorage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/bxcodec/httpcache/cache"
	"github.com/stretchr/testify/assert"
	"go.etcd.io/bbolt"
)

func openDB(t *testing.T) *bbolt.DB {
	t.Helper()

	db, err := bbolt.Open(filepath.Join(t.TempDir(), "cache.db"), 0644, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func TestStorage(t *testing.T) {
	a := assert.New(t)

	s := New(openDB(t), "")

	_, err := s.Get("missing")
	a.ErrorIs(err, cache.ErrCacheMissed)

	cached := cache.CachedResponse{
		DumpedResponse: []byte("HTTP/1.1 200 OK\r\n\r\n[]"),
		RequestURI:     "http://service/api/mentions?video_id=abc",
		RequestMethod:  "GET",
		CachedTime:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}

	a.NoError(s.Set("k", cached))

	got, err := s.Get("k")
	a.NoError(err)
	a.Equal(cached.RequestURI, got.RequestURI)
	a.Equal(cached.DumpedResponse, got.DumpedResponse)
	a.True(cached.CachedTime.Equal(got.CachedTime))

	a.NoError(s.Delete("k"))
	_, err = s.Get("k")
	a.ErrorIs(err, cache.ErrCacheMissed)

	a.NoError(s.Set("k", cached))
	a.NoError(s.Flush())
	_, err = s.Get("k")
	a.ErrorIs(err, cache.ErrCacheMissed)

	a.Equal("bbolt", s.Origin())
}
