package docstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"silent-auction/utils"
)

type docKey struct {
	collection string
	id         string
}

// MemoryStore is a concurrency-safe in-process implementation of Store
type MemoryStore struct {
	mu      sync.RWMutex
	docs    map[string]map[string]Document // key: collection -> id -> document
	version int64                          // store-wide counter, so a recreated document never reuses a version
	hub     *Hub
	now     func() time.Time
}

// NewMemoryStore creates an empty store. A nil hub gets a private one.
func NewMemoryStore(hub *Hub) *MemoryStore {
	if hub == nil {
		hub = NewHub()
	}
	return &MemoryStore{
		docs: make(map[string]map[string]Document),
		hub:  hub,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) Hub() *Hub { return m.hub }

func (m *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.get(collection, id)
}

func (m *MemoryStore) get(collection, id string) (Document, error) {
	d, ok := m.docs[collection][id]
	if !ok {
		return Document{}, fmt.Errorf("get %s/%s: %w", collection, id, ErrNotFound)
	}
	return clone(d), nil
}

func (m *MemoryStore) Query(ctx context.Context, q Query) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.query(q), nil
}

func (m *MemoryStore) query(q Query) []Document {
	coll := m.docs[q.Collection]
	all := make([]Document, 0, len(coll))
	for _, d := range coll {
		all = append(all, clone(d))
	}
	return ApplyQuery(q, all)
}

func (m *MemoryStore) Set(ctx context.Context, collection, id string, fields Fields) error {
	return m.commit(ctx, nil, []writeOp{{kind: opSet, collection: collection, id: id, fields: fields}})
}

func (m *MemoryStore) Update(ctx context.Context, collection, id string, fields Fields) error {
	return m.commit(ctx, nil, []writeOp{{kind: opUpdate, collection: collection, id: id, fields: fields}})
}

func (m *MemoryStore) Add(ctx context.Context, collection string, fields Fields) (string, error) {
	id := utils.GenerateID()
	if err := m.commit(ctx, nil, []writeOp{{kind: opCreate, collection: collection, id: id, fields: fields}}); err != nil {
		return "", err
	}
	return id, nil
}

func (m *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	return m.commit(ctx, nil, []writeOp{{kind: opDelete, collection: collection, id: id}})
}

func (m *MemoryStore) Subscribe(ctx context.Context, q Query) (*Subscription, error) {
	return m.hub.Subscribe(ctx, q, m.Query)
}

func (m *MemoryStore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memoryTx{store: m, reads: make(map[docKey]int64)}
	if err := fn(tx); err != nil {
		return err
	}
	return m.commit(ctx, tx.reads, tx.writes)
}

func (m *MemoryStore) Close() error { return nil }

type opKind int

const (
	opSet opKind = iota
	opCreate
	opUpdate
	opDelete
)

type writeOp struct {
	kind       opKind
	collection string
	id         string
	fields     Fields
}

// commit validates reads and applies writes under one lock: either every
// write lands or none does.
func (m *MemoryStore) commit(ctx context.Context, reads map[docKey]int64, writes []writeOp) error {
	if len(writes) == 0 {
		return nil
	}

	normalized := make([]Fields, len(writes))
	for i, w := range writes {
		if w.kind == opDelete {
			continue
		}
		f, err := normalize(w.fields)
		if err != nil {
			return err
		}
		normalized[i] = f
	}

	m.mu.Lock()
	for k, v := range reads {
		var current int64
		if d, ok := m.docs[k.collection][k.id]; ok {
			current = d.Version
		}
		if current != v {
			m.mu.Unlock()
			return fmt.Errorf("commit %s/%s: %w", k.collection, k.id, ErrConflict)
		}
	}

	// dry run against a view of the pending state so a failing op aborts all
	exists := func(c, id string) bool {
		_, ok := m.docs[c][id]
		return ok
	}
	pending := make(map[docKey]bool)
	for _, w := range writes {
		k := docKey{w.collection, w.id}
		present, seen := pending[k]
		if !seen {
			present = exists(w.collection, w.id)
		}
		switch w.kind {
		case opCreate:
			if present {
				m.mu.Unlock()
				return fmt.Errorf("create %s/%s: %w", w.collection, w.id, ErrAlreadyExists)
			}
			pending[k] = true
		case opUpdate:
			if !present {
				m.mu.Unlock()
				return fmt.Errorf("update %s/%s: %w", w.collection, w.id, ErrNotFound)
			}
		case opDelete:
			if !present {
				m.mu.Unlock()
				return fmt.Errorf("delete %s/%s: %w", w.collection, w.id, ErrNotFound)
			}
			pending[k] = false
		case opSet:
			pending[k] = true
		}
	}

	now := m.now()
	touched := make([]string, 0, len(writes))
	for i, w := range writes {
		touched = append(touched, w.collection)
		coll, ok := m.docs[w.collection]
		if !ok {
			coll = make(map[string]Document)
			m.docs[w.collection] = coll
		}
		m.version++
		switch w.kind {
		case opDelete:
			delete(coll, w.id)
		case opUpdate:
			d := coll[w.id]
			merged := make(Fields, len(d.Fields)+len(normalized[i]))
			for k, v := range d.Fields {
				merged[k] = v
			}
			for k, v := range normalized[i] {
				merged[k] = v
			}
			d.Fields = merged
			d.Version = m.version
			d.UpdateTime = now
			coll[w.id] = d
		default:
			created := now
			if d, ok := coll[w.id]; ok {
				created = d.CreateTime
			}
			coll[w.id] = Document{
				ID:         w.id,
				Collection: w.collection,
				Fields:     normalized[i],
				Version:    m.version,
				CreateTime: created,
				UpdateTime: now,
			}
		}
	}
	m.mu.Unlock()

	m.hub.Changed(ctx, touched...)
	return nil
}

func clone(d Document) Document {
	f := make(Fields, len(d.Fields))
	for k, v := range d.Fields {
		f[k] = v
	}
	d.Fields = f
	return d
}

type memoryTx struct {
	store  *MemoryStore
	reads  map[docKey]int64
	writes []writeOp
}

func (t *memoryTx) Get(collection, id string) (Document, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	k := docKey{collection, id}
	d, err := t.store.get(collection, id)
	if err != nil {
		// absence is also a read: a concurrent create must conflict
		if _, ok := t.reads[k]; !ok {
			t.reads[k] = 0
		}
		return Document{}, err
	}
	if _, ok := t.reads[k]; !ok {
		t.reads[k] = d.Version
	}
	return d, nil
}

func (t *memoryTx) Query(q Query) ([]Document, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.store.query(q), nil
}

func (t *memoryTx) Set(collection, id string, fields Fields) error {
	t.writes = append(t.writes, writeOp{kind: opSet, collection: collection, id: id, fields: fields})
	return nil
}

func (t *memoryTx) Create(collection, id string, fields Fields) error {
	if _, err := t.Get(collection, id); err == nil {
		return fmt.Errorf("create %s/%s: %w", collection, id, ErrAlreadyExists)
	}
	t.writes = append(t.writes, writeOp{kind: opCreate, collection: collection, id: id, fields: fields})
	return nil
}

func (t *memoryTx) Update(collection, id string, fields Fields) error {
	if _, err := t.Get(collection, id); err != nil {
		return err
	}
	t.writes = append(t.writes, writeOp{kind: opUpdate, collection: collection, id: id, fields: fields})
	return nil
}

func (t *memoryTx) Delete(collection, id string) error {
	t.writes = append(t.writes, writeOp{kind: opDelete, collection: collection, id: id})
	return nil
}
