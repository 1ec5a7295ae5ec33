// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package ingesttest

import (
	"context"
	"io"
	"sync"
)

// BlobStore is an in-memory object store with fault injection, for
// exercising the upload pipeline's retry and consistency behavior.
type BlobStore struct {
	mu sync.Mutex

	blobs    map[string][]byte
	putFault error
	putCalls int
}

// NewBlobStore creates an empty in-memory object store.
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: map[string][]byte{}}
}

// SetPutFault makes every following Put fail with err until cleared with nil.
func (store *BlobStore) SetPutFault(err error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.putFault = err
}

// PutCalls returns how many times Put was invoked.
func (store *BlobStore) PutCalls() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.putCalls
}

// Get returns a stored blob and whether it exists.
func (store *BlobStore) Get(key string) ([]byte, bool) {
	store.mu.Lock()
	defer store.mu.Unlock()
	blob, ok := store.blobs[key]
	return blob, ok
}

// Len returns the number of stored blobs.
func (store *BlobStore) Len() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.blobs)
}

// Put implements objectstore.Store.
func (store *BlobStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	store.putCalls++
	if store.putFault != nil {
		return store.putFault
	}
	store.blobs[key] = data
	return nil
}

// Delete implements objectstore.Store.
func (store *BlobStore) Delete(ctx context.Context, key string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	delete(store.blobs, key)
	return nil
}

// Ping implements objectstore.Store.
func (store *BlobStore) Ping(ctx context.Context) error {
	return nil
}
