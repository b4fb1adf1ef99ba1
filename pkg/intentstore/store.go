// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package intentstore persists intent records in an embedded vector store.
//
// Each record pairs a natural-language intent text with string metadata.
// List-valued metadata is stored as JSON-encoded string arrays so that
// updates can merge rather than clobber. One reserved record per collection
// holds collection-level metadata such as the capability config hash.
package intentstore

import (
	"context"
	"fmt"
	"log/slog"

	chromem "github.com/philippgille/chromem-go"
)

// MetaRecordID is the reserved document ID of the collection-metadata
// record. It never matches the type filters used for intent queries, so it
// cannot surface as a candidate.
const MetaRecordID = "__collection_meta__"

// metaRecordType is the type value stamped on the reserved record.
const metaRecordType = "collection_meta"

// Item is one intent record as seen by callers.
type Item struct {
	ID         string
	Text       string
	Metadata   map[string]string
	Similarity float32
}

// Store is the persistence facade used by the index builder and the kernel.
type Store interface {
	// PutItem inserts or replaces the record with the given ID.
	PutItem(ctx context.Context, id, text string, metadata map[string]string) error

	// UpdateMetadata merges updates into an existing record's metadata
	// using MergeMetadata semantics. The record's text and embedding are
	// preserved.
	UpdateMetadata(ctx context.Context, id string, updates map[string]string) error

	// QueryByText returns up to n records most similar to text, best
	// first. where filters on exact metadata equality. n is clamped to
	// the collection size; an empty collection yields no results.
	QueryByText(ctx context.Context, text string, n int, where map[string]string) ([]Item, error)

	// GetByID fetches one record. A missing ID is not an error: found is
	// false and err is nil.
	GetByID(ctx context.Context, id string) (item Item, found bool, err error)

	// Clear removes every record, including the collection-metadata one.
	Clear(ctx context.Context) error

	// LoadCollectionMetadata returns the reserved record's metadata, or an
	// empty map when the record does not exist yet.
	LoadCollectionMetadata(ctx context.Context) (map[string]string, error)

	// SaveCollectionMetadata replaces the reserved record's metadata.
	SaveCollectionMetadata(ctx context.Context, metadata map[string]string) error
}

// ChromemStore implements Store on an embedded chromem-go database.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	name       string
	embed      chromem.EmbeddingFunc
}

// Options configures a ChromemStore.
type Options struct {
	// PersistDir is the on-disk location of the database. Empty means a
	// purely in-memory store.
	PersistDir string

	// Collection is the collection name. Required.
	Collection string

	// Embed converts text to a vector. Required.
	Embed func(ctx context.Context, text string) ([]float32, error)
}

// NewChromemStore opens (or creates) the collection described by opts.
func NewChromemStore(opts Options) (*ChromemStore, error) {
	if opts.Collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if opts.Embed == nil {
		return nil, fmt.Errorf("embedding function is required")
	}

	var db *chromem.DB
	var err error
	if opts.PersistDir != "" {
		db, err = chromem.NewPersistentDB(opts.PersistDir, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open persistent store at %s: %w", opts.PersistDir, err)
		}
	} else {
		db = chromem.NewDB()
	}

	embed := chromem.EmbeddingFunc(opts.Embed)
	collection, err := db.GetOrCreateCollection(opts.Collection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", opts.Collection, err)
	}

	slog.Debug("Opened intent store",
		"collection", opts.Collection,
		"persistDir", opts.PersistDir,
		"records", collection.Count())

	return &ChromemStore{
		db:         db,
		collection: collection,
		name:       opts.Collection,
		embed:      embed,
	}, nil
}

// PutItem inserts or replaces a record. Re-adding an existing ID overwrites
// it in place.
func (s *ChromemStore) PutItem(ctx context.Context, id, text string, metadata map[string]string) error {
	if id == "" {
		return fmt.Errorf("record ID is required")
	}
	doc := chromem.Document{
		ID:       id,
		Content:  text,
		Metadata: cloneMetadata(metadata),
	}
	if err := s.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to store record %s: %w", id, err)
	}
	return nil
}

// UpdateMetadata merges updates into an existing record.
func (s *ChromemStore) UpdateMetadata(ctx context.Context, id string, updates map[string]string) error {
	doc, err := s.collection.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("record %s not found: %w", id, err)
	}

	merged := MergeMetadata(doc.Metadata, updates)

	// Reuse the stored embedding so the text is not re-embedded.
	if err := s.collection.AddDocument(ctx, chromem.Document{
		ID:        doc.ID,
		Content:   doc.Content,
		Metadata:  merged,
		Embedding: doc.Embedding,
	}); err != nil {
		return fmt.Errorf("failed to update record %s: %w", id, err)
	}
	return nil
}

// QueryByText runs a similarity query over the collection.
func (s *ChromemStore) QueryByText(ctx context.Context, text string, n int, where map[string]string) ([]Item, error) {
	if n <= 0 {
		return nil, nil
	}
	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}
	// chromem rejects nResults larger than the collection size.
	if n > count {
		n = count
	}

	results, err := s.collection.Query(ctx, text, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	items := make([]Item, 0, len(results))
	for _, r := range results {
		items = append(items, Item{
			ID:         r.ID,
			Text:       r.Content,
			Metadata:   cloneMetadata(r.Metadata),
			Similarity: r.Similarity,
		})
	}
	return items, nil
}

// GetByID fetches one record by its ID.
func (s *ChromemStore) GetByID(ctx context.Context, id string) (Item, bool, error) {
	doc, err := s.collection.GetByID(ctx, id)
	if err != nil {
		// chromem reports a missing ID as an error; callers treat
		// absence as a normal outcome.
		return Item{}, false, nil
	}
	return Item{
		ID:       doc.ID,
		Text:     doc.Content,
		Metadata: cloneMetadata(doc.Metadata),
	}, true, nil
}

// Clear drops and recreates the collection.
func (s *ChromemStore) Clear(ctx context.Context) error {
	if err := s.db.DeleteCollection(s.name); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", s.name, err)
	}
	collection, err := s.db.GetOrCreateCollection(s.name, nil, s.embed)
	if err != nil {
		return fmt.Errorf("failed to recreate collection %s: %w", s.name, err)
	}
	s.collection = collection
	slog.Debug("Cleared intent store", "collection", s.name)
	return nil
}

// LoadCollectionMetadata returns the reserved record's metadata.
func (s *ChromemStore) LoadCollectionMetadata(ctx context.Context) (map[string]string, error) {
	item, found, err := s.GetByID(ctx, MetaRecordID)
	if err != nil {
		return nil, err
	}
	if !found {
		return map[string]string{}, nil
	}
	metadata := item.Metadata
	delete(metadata, "type")
	return metadata, nil
}

// SaveCollectionMetadata merges the partial into the reserved record. Keys
// follow the usual merge rule: lists union, other values overwrite, absent
// keys survive.
func (s *ChromemStore) SaveCollectionMetadata(ctx context.Context, metadata map[string]string) error {
	existing, err := s.LoadCollectionMetadata(ctx)
	if err != nil {
		return err
	}
	merged := MergeMetadata(existing, metadata)
	merged["type"] = metaRecordType
	return s.PutItem(ctx, MetaRecordID, "collection metadata", merged)
}

func cloneMetadata(metadata map[string]string) map[string]string {
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
