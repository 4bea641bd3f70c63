// Package bboltstorage keeps httpcache responses in a bbolt bucket, so
// mention and clip listings survive restarts.
package bboltstorage

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/bxcodec/httpcache/cache"
	"go.etcd.io/bbolt"
)

const DefaultBucket = "artifacts"

type Storage struct {
	db     *bbolt.DB
	bucket []byte
}

func New(db *bbolt.DB, bucket string) *Storage {
	if bucket == "" {
		bucket = DefaultBucket
	}

	return &Storage{db: db, bucket: []byte(bucket)}
}

func (s *Storage) Set(key string, value cache.CachedResponse) error {
	buf := bytes.NewBuffer(nil)
	if err := gob.NewEncoder(buf).Encode(value); err != nil {
		return fmt.Errorf("bboltstorage.Storage.Set: could not encode response: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(s.bucket)
		if err != nil {
			return fmt.Errorf("bboltstorage.Storage.Set: could not create bucket: %w", err)
		}

		if err := b.Put([]byte(key), buf.Bytes()); err != nil {
			return cache.ErrFailedToSaveToCache
		}

		return nil
	})
}

func (s *Storage) Get(key string) (cache.CachedResponse, error) {
	var res cache.CachedResponse

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return cache.ErrCacheMissed
		}

		// the slice is only valid inside the transaction
		d := b.Get([]byte(key))
		if d == nil {
			return cache.ErrCacheMissed
		}

		return gob.NewDecoder(bytes.NewReader(d)).Decode(&res)
	})
	if err != nil {
		return cache.CachedResponse{}, err
	}

	return res, nil
}

func (s *Storage) Delete(key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}

		return b.Delete([]byte(key))
	})
}

// Flush drops every cached response in the bucket.
func (s *Storage) Flush() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(s.bucket) == nil {
			return nil
		}

		return tx.DeleteBucket(s.bucket)
	})
}

func (s *Storage) Origin() string {
	return "bbolt"
}
