// Package gormstore keeps documents in a single SQL table through gorm, so the
// auction can run against postgres, mysql or sqlite.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"silent-auction/internal/docstore"
	"silent-auction/utils"
)

// documentRecord is one row of the documents table
type documentRecord struct {
	Collection string         `gorm:"primaryKey;size:255"`
	ID         string         `gorm:"primaryKey;size:191"`
	Data       datatypes.JSON `gorm:"not null"`
	Version    int64          `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (documentRecord) TableName() string { return "documents" }

// Open connects to the database named by driver ("postgres", "mysql" or "sqlite")
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case "postgres", "postgresql":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	case "sqlite", "sqlite3":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("gormstore: unsupported driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("gormstore: connect %s: %w", driver, err)
	}

	if dialector.Name() == "sqlite" {
		// sqlite allows one writer; a single connection serializes transactions instead of failing them
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("gormstore: sqlite pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Store implements docstore.Store on top of gorm
type Store struct {
	db  *gorm.DB
	hub *docstore.Hub
	now func() time.Time
}

// New migrates the documents table and returns the store. A nil hub gets a private one.
func New(db *gorm.DB, hub *docstore.Hub) (*Store, error) {
	if hub == nil {
		hub = docstore.NewHub()
	}
	if err := db.AutoMigrate(&documentRecord{}); err != nil {
		return nil, fmt.Errorf("gormstore: migrate: %w", err)
	}
	return &Store{db: db, hub: hub, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Hub() *docstore.Hub { return s.hub }

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	rec, err := load(s.db.WithContext(ctx), collection, id, false)
	if err != nil {
		return docstore.Document{}, err
	}
	return toDocument(rec)
}

// Query loads the collection and evaluates the query in process. Filtering on
// JSON fields is dialect specific, and collections here are one item's ledger
// or the item list.
func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	return query(s.db.WithContext(ctx), q)
}

func (s *Store) Set(ctx context.Context, collection, id string, fields docstore.Fields) error {
	return s.RunTransaction(ctx, func(tx docstore.Tx) error {
		return tx.Set(collection, id, fields)
	})
}

func (s *Store) Update(ctx context.Context, collection, id string, fields docstore.Fields) error {
	return s.RunTransaction(ctx, func(tx docstore.Tx) error {
		return tx.Update(collection, id, fields)
	})
}

func (s *Store) Add(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	id := utils.GenerateID()
	err := s.RunTransaction(ctx, func(tx docstore.Tx) error {
		return tx.Create(collection, id, fields)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	return s.RunTransaction(ctx, func(tx docstore.Tx) error {
		return tx.Delete(collection, id)
	})
}

func (s *Store) Subscribe(ctx context.Context, q docstore.Query) (*docstore.Subscription, error) {
	return s.hub.Subscribe(ctx, q, s.Query)
}

// RunTransaction runs fn in a database transaction. Documents fetched with
// tx.Get are row-locked where the dialect supports it, and every write is
// version-checked, so a concurrent commit surfaces as docstore.ErrConflict.
func (s *Store) RunTransaction(ctx context.Context, fn func(tx docstore.Tx) error) error {
	var touched []string
	err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		t := &sqlTx{db: gtx, reads: make(map[string]int64), now: s.now}
		if err := fn(t); err != nil {
			return err
		}
		touched = t.touched
		return nil
	})
	if err != nil {
		return err
	}
	s.hub.Changed(ctx, touched...)
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func load(db *gorm.DB, collection, id string, lock bool) (documentRecord, error) {
	var rec documentRecord
	q := db
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.Where("collection = ? AND id = ?", collection, id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return documentRecord{}, fmt.Errorf("get %s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	if err != nil {
		return documentRecord{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return rec, nil
}

func query(db *gorm.DB, q docstore.Query) ([]docstore.Document, error) {
	var recs []documentRecord
	if err := db.Where("collection = ?", q.Collection).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	docs := make([]docstore.Document, 0, len(recs))
	for _, rec := range recs {
		d, err := toDocument(rec)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docstore.ApplyQuery(q, docs), nil
}

func toDocument(rec documentRecord) (docstore.Document, error) {
	var fields docstore.Fields
	if err := json.Unmarshal(rec.Data, &fields); err != nil {
		return docstore.Document{}, fmt.Errorf("decode %s/%s: %w", rec.Collection, rec.ID, err)
	}
	return docstore.Document{
		ID:         rec.ID,
		Collection: rec.Collection,
		Fields:     fields,
		Version:    rec.Version,
		CreateTime: rec.CreatedAt,
		UpdateTime: rec.UpdatedAt,
	}, nil
}

type sqlTx struct {
	db      *gorm.DB
	reads   map[string]int64
	touched []string
	now     func() time.Time
}

func key(collection, id string) string { return collection + "\x00" + id }

func (t *sqlTx) Get(collection, id string) (docstore.Document, error) {
	rec, err := load(t.db, collection, id, true)
	if err != nil {
		return docstore.Document{}, err
	}
	if _, ok := t.reads[key(collection, id)]; !ok {
		t.reads[key(collection, id)] = rec.Version
	}
	return toDocument(rec)
}

func (t *sqlTx) Query(q docstore.Query) ([]docstore.Document, error) {
	return query(t.db, q)
}

func (t *sqlTx) Set(collection, id string, fields docstore.Fields) error {
	rec, err := load(t.db, collection, id, true)
	if errors.Is(err, docstore.ErrNotFound) {
		return t.insert(collection, id, fields)
	}
	if err != nil {
		return err
	}
	data, err := marshal(fields)
	if err != nil {
		return err
	}
	return t.write(rec, data)
}

func (t *sqlTx) Create(collection, id string, fields docstore.Fields) error {
	_, err := load(t.db, collection, id, true)
	if err == nil {
		return fmt.Errorf("create %s/%s: %w", collection, id, docstore.ErrAlreadyExists)
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return err
	}
	return t.insert(collection, id, fields)
}

func (t *sqlTx) Update(collection, id string, fields docstore.Fields) error {
	rec, err := load(t.db, collection, id, true)
	if err != nil {
		return err
	}
	var merged docstore.Fields
	if err := json.Unmarshal(rec.Data, &merged); err != nil {
		return fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	if merged == nil {
		merged = docstore.Fields{}
	}
	for k, v := range fields {
		merged[k] = v
	}
	data, err := marshal(merged)
	if err != nil {
		return err
	}
	return t.write(rec, data)
}

func (t *sqlTx) Delete(collection, id string) error {
	q := t.db.Where("collection = ? AND id = ?", collection, id)
	if v, ok := t.reads[key(collection, id)]; ok {
		q = q.Where("version = ?", v)
	}
	res := q.Delete(&documentRecord{})
	if res.Error != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, ok := t.reads[key(collection, id)]; ok {
			return fmt.Errorf("delete %s/%s: %w", collection, id, docstore.ErrConflict)
		}
		return fmt.Errorf("delete %s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	t.touched = append(t.touched, collection)
	return nil
}

func (t *sqlTx) insert(collection, id string, fields docstore.Fields) error {
	data, err := marshal(fields)
	if err != nil {
		return err
	}
	now := t.now()
	rec := documentRecord{Collection: collection, ID: id, Data: data, Version: 1, CreatedAt: now, UpdatedAt: now}
	if err := t.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("create %s/%s: %w", collection, id, err)
	}
	t.touched = append(t.touched, collection)
	return nil
}

// write replaces rec's data if its version still matches what this
// transaction first read (optimistic lock), bumping the version.
func (t *sqlTx) write(rec documentRecord, data datatypes.JSON) error {
	expected := rec.Version
	if v, ok := t.reads[key(rec.Collection, rec.ID)]; ok {
		expected = v
	}
	res := t.db.Model(&documentRecord{}).
		Where("collection = ? AND id = ? AND version = ?", rec.Collection, rec.ID, expected).
		Updates(map[string]any{
			"data":       data,
			"version":    expected + 1,
			"updated_at": t.now(),
		})
	if res.Error != nil {
		return fmt.Errorf("write %s/%s: %w", rec.Collection, rec.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("write %s/%s: %w", rec.Collection, rec.ID, docstore.ErrConflict)
	}
	// later writes in this transaction build on the version just written
	t.reads[key(rec.Collection, rec.ID)] = expected + 1
	t.touched = append(t.touched, rec.Collection)
	return nil
}

func marshal(fields docstore.Fields) (datatypes.JSON, error) {
	if fields == nil {
		fields = docstore.Fields{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return datatypes.JSON(raw), nil
}
