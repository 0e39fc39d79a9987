package rag

import (
	"context"
	"encoding/json"
	"time"
)

// Cache is the byte store documents are cached in. Satisfied by the
// in-memory LRU adapter.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// Embedder turns texts into vectors. The credential is per call, it
// belongs to the end user owning the request.
type Embedder interface {
	Embed(ctx context.Context, apiKey string, inputs []string) ([][]float64, error)
}

// Document is one split and embedded file, ready for retrieval.
// Vectors[i] embeds Chunks[i].
type Document struct {
	Chunks  []string    `json:"chunks"`
	Vectors [][]float64 `json:"vectors"`
}

// Index builds the searchable index over the document vectors.
func (d *Document) Index() (*FlatIndex, error) {
	return NewFlatIndexFrom(d.Vectors)
}

// DocumentCache stores embedded documents so repeated questions about
// one file skip the split and embedding work.
type DocumentCache struct {
	cache Cache
	ttl   time.Duration
}

// NewDocumentCache wraps a byte cache with document serialization.
func NewDocumentCache(cache Cache, ttl time.Duration) *DocumentCache {
	return &DocumentCache{cache: cache, ttl: ttl}
}

// CacheKey scopes a document entry to one conversation and file.
func CacheKey(conversationID, fileURL string) string {
	return conversationID + ":" + fileURL
}

// Get returns the cached document for key. Entries that fail to decode
// are dropped and reported as misses.
func (c *DocumentCache) Get(ctx context.Context, key string) (*Document, bool) {
	data, ok := c.cache.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		_ = c.cache.Delete(ctx, key)
		return nil, false
	}
	return &doc, true
}

// Put stores the document under key with the cache TTL.
func (c *DocumentCache) Put(ctx context.Context, key string, doc *Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return c.cache.Set(ctx, key, data, int(c.ttl.Seconds()))
}
