// Package httpcache is a small read-through cache for thumbnail images. It
// ignores cache headers entirely: a successful image response is kept for
// a fixed age.
package httpcache

import (
	"bytes"
	"crypto/sha1"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const (
	DefaultBucket = "thumbnails"
	DefaultMaxAge = time.Hour * 24

	// images larger than this are passed through uncached
	MaxBodySize = 4 << 20

	HeaderCache = "X-Thumbnail-Cache"
)

type cachedResponse struct {
	UpdatedAt  time.Time
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *cachedResponse) makeResponse(req *http.Request, state string) *http.Response {
	h := r.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set(HeaderCache, state)

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", r.StatusCode, http.StatusText(r.StatusCode)),
		StatusCode:    r.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(r.Body)),
		ContentLength: int64(len(r.Body)),
		Request:       req,
	}
}

type Storage interface {
	Fetch(u *url.URL) (*cachedResponse, error)
	Save(u *url.URL, r *cachedResponse) error
}

type BBoltStorage struct {
	db     *bbolt.DB
	bucket []byte
}

func NewBBoltStorage(db *bbolt.DB, bucket string) *BBoltStorage {
	if bucket == "" {
		bucket = DefaultBucket
	}

	return &BBoltStorage{db: db, bucket: []byte(bucket)}
}

func makeBBoltKey(u *url.URL) []byte {
	h := sha1.New()
	io.WriteString(h, u.String())
	return []byte(path.Join(u.Host, hex.EncodeToString(h.Sum(nil))))
}

func (s *BBoltStorage) Fetch(u *url.URL) (*cachedResponse, error) {
	var r *cachedResponse

	if err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}

		d := b.Get(makeBBoltKey(u))
		if d == nil {
			return nil
		}

		r = &cachedResponse{}
		return gob.NewDecoder(bytes.NewReader(d)).Decode(r)
	}); err != nil {
		return nil, fmt.Errorf("httpcache.BBoltStorage.Fetch: %w", err)
	}

	return r, nil
}

func (s *BBoltStorage) Save(u *url.URL, r *cachedResponse) error {
	buf := bytes.NewBuffer(nil)
	if err := gob.NewEncoder(buf).Encode(r); err != nil {
		return fmt.Errorf("httpcache.BBoltStorage.Save: could not encode response: %w", err)
	}

	if err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(s.bucket)
		if err != nil {
			return err
		}

		return b.Put(makeBBoltKey(u), buf.Bytes())
	}); err != nil {
		return fmt.Errorf("httpcache.BBoltStorage.Save: %w", err)
	}

	return nil
}

// Purge removes entries last updated before cutoff and reports how many
// went.
func (s *BBoltStorage) Purge(cutoff time.Time) (int, error) {
	n := 0

	if err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}

		var stale [][]byte

		if err := b.ForEach(func(k, v []byte) error {
			var r cachedResponse
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&r); err != nil || r.UpdatedAt.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}

		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			n++
		}

		return nil
	}); err != nil {
		return n, fmt.Errorf("httpcache.BBoltStorage.Purge: %w", err)
	}

	return n, nil
}

type Transport struct {
	transport http.RoundTripper
	storage   Storage
	maxAge    time.Duration
	now       func() time.Time
}

func NewTransport(transport http.RoundTripper, storage Storage, maxAge time.Duration) *Transport {
	if transport == nil {
		transport = http.DefaultTransport
	}

	if maxAge == 0 {
		maxAge = DefaultMaxAge
	}

	return &Transport{
		transport: transport,
		storage:   storage,
		maxAge:    maxAge,
		now:       time.Now,
	}
}

func cacheable(res *http.Response) bool {
	return res.StatusCode == http.StatusOK &&
		strings.HasPrefix(res.Header.Get("content-type"), "image/") &&
		res.ContentLength <= MaxBodySize
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return t.transport.RoundTrip(req)
	}

	if cr, err := t.storage.Fetch(req.URL); err == nil && cr != nil && t.now().Sub(cr.UpdatedAt) < t.maxAge {
		return cr.makeResponse(req, "hit"), nil
	}

	res, err := t.transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if !cacheable(res) {
		return res, nil
	}

	defer res.Body.Close()

	d, err := io.ReadAll(io.LimitReader(res.Body, MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("httpcache.Transport.RoundTrip: could not read body: %w", err)
	}

	cr := &cachedResponse{
		UpdatedAt:  t.now(),
		URL:        req.URL.String(),
		StatusCode: res.StatusCode,
		Header:     res.Header.Clone(),
		Body:       d,
	}

	if len(d) > MaxBodySize {
		return cr.makeResponse(req, "skip"), nil
	}

	if err := t.storage.Save(req.URL, cr); err != nil {
		return nil, err
	}

	return cr.makeResponse(req, "miss"), nil
}
