// Package store persists the document catalog, chunk metadata, processed
// chunk cache blobs, and the local vector index in bbolt.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"docqa/internal/domain"
)

var (
	bucketDocuments = []byte("documents")
	bucketByHash    = []byte("by_hash")
	bucketChunks    = []byte("chunks")
	bucketDocChunks = []byte("doc_chunks")
	bucketCache     = []byte("chunk_cache")
)

type BoltCatalog struct {
	db *bbolt.DB
}

func NewBoltCatalog(path string) (*BoltCatalog, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{bucketDocuments, bucketByHash, bucketChunks, bucketDocChunks, bucketCache}
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltCatalog{db: db}, nil
}

func (s *BoltCatalog) DB() *bbolt.DB {
	return s.db
}

func (s *BoltCatalog) PutDocument(doc domain.Document) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketDocuments).Put([]byte(doc.Name), data); err != nil {
			return err
		}
		return tx.Bucket(bucketByHash).Put([]byte(doc.ContentHash), []byte(doc.Name))
	})
}

func (s *BoltCatalog) GetDocument(name string) (domain.Document, error) {
	var doc domain.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocuments).Get([]byte(name))
		if data == nil {
			return fmt.Errorf("%w: document %s", domain.ErrNotFound, name)
		}
		return json.Unmarshal(data, &doc)
	})
	return doc, err
}

func (s *BoltCatalog) FindByContentHash(hash string) (domain.Document, bool, error) {
	var doc domain.Document
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		name := tx.Bucket(bucketByHash).Get([]byte(hash))
		if name == nil {
			return nil
		}
		data := tx.Bucket(bucketDocuments).Get(name)
		if data == nil {
			// Stale hash entry; treat as absent.
			return nil
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		found = true
		return nil
	})
	return doc, found, err
}

func (s *BoltCatalog) DeleteDocument(name string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		docs := tx.Bucket(bucketDocuments)
		data := docs.Get([]byte(name))
		if data == nil {
			return fmt.Errorf("%w: document %s", domain.ErrNotFound, name)
		}
		var doc domain.Document
		if err := json.Unmarshal(data, &doc); err == nil {
			tx.Bucket(bucketByHash).Delete([]byte(doc.ContentHash))
		}
		return docs.Delete([]byte(name))
	})
}

func (s *BoltCatalog) ListDocuments() ([]domain.Document, error) {
	var docs []domain.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketDocuments)
		return b.ForEach(func(k, v []byte) error {
			var doc domain.Document
			if err := json.Unmarshal(v, &doc); err != nil {
				return err
			}
			docs = append(docs, doc)
			return nil
		})
	})
	return docs, err
}

func (s *BoltCatalog) PutChunks(chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		chunkBucket := tx.Bucket(bucketChunks)
		docChunks := tx.Bucket(bucketDocChunks)

		perDoc := make(map[string][]string)
		for _, chunk := range chunks {
			data, err := json.Marshal(chunk)
			if err != nil {
				return err
			}
			if err := chunkBucket.Put([]byte(chunk.ID), data); err != nil {
				return err
			}
			perDoc[chunk.DocName] = append(perDoc[chunk.DocName], chunk.ID)
		}

		for docName, ids := range perDoc {
			var existing []string
			if data := docChunks.Get([]byte(docName)); data != nil {
				json.Unmarshal(data, &existing)
			}
			existing = append(existing, ids...)
			data, err := json.Marshal(existing)
			if err != nil {
				return err
			}
			if err := docChunks.Put([]byte(docName), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltCatalog) GetChunk(id string) (domain.Chunk, error) {
	var chunk domain.Chunk
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketChunks).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: chunk %s", domain.ErrNotFound, id)
		}
		return json.Unmarshal(data, &chunk)
	})
	return chunk, err
}

func (s *BoltCatalog) GetChunksByDoc(name string) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocChunks).Get([]byte(name))
		if data == nil {
			return nil
		}
		var ids []string
		if err := json.Unmarshal(data, &ids); err != nil {
			return err
		}
		chunkBucket := tx.Bucket(bucketChunks)
		for _, id := range ids {
			raw := chunkBucket.Get([]byte(id))
			if raw == nil {
				continue
			}
			var chunk domain.Chunk
			if err := json.Unmarshal(raw, &chunk); err != nil {
				continue
			}
			chunks = append(chunks, chunk)
		}
		return nil
	})
	return chunks, err
}

func (s *BoltCatalog) DeleteChunksByDoc(name string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		docChunks := tx.Bucket(bucketDocChunks)
		data := docChunks.Get([]byte(name))
		if data == nil {
			return nil
		}
		var ids []string
		if err := json.Unmarshal(data, &ids); err != nil {
			return err
		}
		chunkBucket := tx.Bucket(bucketChunks)
		for _, id := range ids {
			chunkBucket.Delete([]byte(id))
		}
		return docChunks.Delete([]byte(name))
	})
}

func cacheBlobKey(contentHash, configHash string) []byte {
	return []byte(contentHash + "|" + configHash)
}

func (s *BoltCatalog) PutCachedChunks(contentHash, configHash string, chunks []domain.Chunk) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(chunks)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketCache).Put(cacheBlobKey(contentHash, configHash), data)
	})
}

func (s *BoltCatalog) GetCachedChunks(contentHash, configHash string) ([]domain.Chunk, bool, error) {
	var chunks []domain.Chunk
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketCache).Get(cacheBlobKey(contentHash, configHash))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &chunks); err != nil {
			return err
		}
		found = true
		return nil
	})
	return chunks, found, err
}

func (s *BoltCatalog) DeleteCachedChunks(contentHash string) error {
	prefix := []byte(contentHash + "|")
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCache)
		c := b.Cursor()
		var stale [][]byte
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			key := make([]byte, len(k))
			copy(key, k)
			stale = append(stale, key)
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltCatalog) Close() error {
	return s.db.Close()
}
