// Package docstore is the document store adapter the auction engine is written
// against: keyed documents grouped into collections, atomic read-modify-write
// transactions, and collection-level change subscriptions.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrAlreadyExists = errors.New("document already exists")
	// ErrConflict means a document read inside a transaction changed before commit.
	ErrConflict = errors.New("transaction conflict")
)

// Fields is the JSON-shaped content of a document
type Fields map[string]any

// Document is a stored document with its concurrency metadata
type Document struct {
	ID         string
	Collection string
	Fields     Fields
	Version    int64
	CreateTime time.Time
	UpdateTime time.Time
}

// DataTo decodes the document fields into v
func (d Document) DataTo(v any) error {
	raw, err := json.Marshal(d.Fields)
	if err != nil {
		return fmt.Errorf("docstore: marshal %s/%s: %w", d.Collection, d.ID, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("docstore: decode %s/%s: %w", d.Collection, d.ID, err)
	}
	return nil
}

// Encode converts a struct into Fields using its json tags. Values are
// normalized to JSON types so every store compares them the same way.
func Encode(v any) (Fields, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode: %w", err)
	}
	var out Fields
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("docstore: encode: %w", err)
	}
	return out, nil
}

func normalize(fields Fields) (Fields, error) {
	if fields == nil {
		return Fields{}, nil
	}
	return Encode(fields)
}

// Snapshot is the full result set of a subscribed query at one point in time
type Snapshot struct {
	Query    Query
	Docs     []Document
	ReadTime time.Time
}

// Store is the document store adapter
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, q Query) ([]Document, error)
	// Set creates or replaces a document
	Set(ctx context.Context, collection, id string, fields Fields) error
	// Update merges fields into an existing document
	Update(ctx context.Context, collection, id string, fields Fields) error
	// Add creates a document with a generated id
	Add(ctx context.Context, collection string, fields Fields) (string, error)
	Delete(ctx context.Context, collection, id string) error
	Subscribe(ctx context.Context, q Query) (*Subscription, error)
	// RunTransaction runs fn once. Writes are committed atomically when fn
	// returns nil. If a document fn read through the Tx was modified by
	// someone else first, nothing is written and ErrConflict is returned.
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Tx is the view of the store inside RunTransaction. Reads observe committed
// state; callers must Get a document before writing anything derived from it
// for the conflict check to cover it. Queries are not conflict-checked, so
// guard them by reading a parent document every writer also touches.
type Tx interface {
	Get(collection, id string) (Document, error)
	Query(q Query) ([]Document, error)
	Set(collection, id string, fields Fields) error
	// Create fails with ErrAlreadyExists if the document is present
	Create(collection, id string, fields Fields) error
	Update(collection, id string, fields Fields) error
	Delete(collection, id string) error
}
