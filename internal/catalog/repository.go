// Package catalog persists source features and documents in a SQL database
// (SQLite or Postgres) and loads them into an engine at startup.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/geo"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/spatial"
	"github.com/spherical-ai/spherical/libs/geo-engine/internal/vectorstore"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrUnsupportedDriver = errors.New("unsupported catalog driver")
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Options tune the connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open opens a catalog database. driver is "sqlite" or "postgres".
func Open(driver, dsn string, opts Options) (*sql.DB, error) {
	var sqlDriver string
	switch driver {
	case "sqlite":
		sqlDriver = "sqlite3"
	case "postgres":
		sqlDriver = "postgres"
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	return db, nil
}

// Both drivers accept these statements; JSON columns are stored as text.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS features (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		geometry_type TEXT NOT NULL,
		geometry      TEXT NOT NULL,
		properties    TEXT,
		metadata      TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id              TEXT PRIMARY KEY,
		content         TEXT NOT NULL,
		doc_type        TEXT NOT NULL,
		latitude        DOUBLE PRECISION,
		longitude       DOUBLE PRECISION,
		bounds          TEXT,
		observed_at     TEXT,
		source          TEXT,
		tags            TEXT,
		confidence      DOUBLE PRECISION,
		spatial_context TEXT
	)`,
}

// Repository reads and writes catalog records.
type Repository struct {
	db DB
}

// NewRepository creates a new catalog repository.
func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the catalog tables if they do not exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// SaveFeature inserts or replaces a feature.
func (r *Repository) SaveFeature(ctx context.Context, f spatial.Feature) error {
	if err := f.Validate(); err != nil {
		return err
	}
	geometry, err := json.Marshal(f.Geometry)
	if err != nil {
		return fmt.Errorf("encode geometry: %w", err)
	}
	props, err := encodeOptional(f.Properties, len(f.Properties) > 0)
	if err != nil {
		return fmt.Errorf("encode properties: %w", err)
	}
	meta, err := encodeOptional(f.Metadata, len(f.Metadata) > 0)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	query := `
		INSERT INTO features (id, name, geometry_type, geometry, properties, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			geometry_type = excluded.geometry_type,
			geometry = excluded.geometry,
			properties = excluded.properties,
			metadata = excluded.metadata
	`
	_, err = r.db.ExecContext(ctx, query,
		f.ID, f.Name, string(f.GeometryType), string(geometry), props, meta,
	)
	return err
}

// GetFeature retrieves a feature by ID.
func (r *Repository) GetFeature(ctx context.Context, id string) (spatial.Feature, error) {
	query := `
		SELECT id, name, geometry_type, geometry, properties, metadata
		FROM features WHERE id = $1
	`
	f, err := scanFeature(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return spatial.Feature{}, ErrNotFound
	}
	return f, err
}

// ListFeatures returns every feature ordered by id.
func (r *Repository) ListFeatures(ctx context.Context) ([]spatial.Feature, error) {
	query := `
		SELECT id, name, geometry_type, geometry, properties, metadata
		FROM features ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var features []spatial.Feature
	for rows.Next() {
		f, err := scanFeature(rows)
		if err != nil {
			return nil, err
		}
		features = append(features, f)
	}
	return features, rows.Err()
}

// DeleteFeature reports whether a row was removed.
func (r *Repository) DeleteFeature(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM features WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SaveDocument inserts or replaces a document. Embeddings are not stored;
// they are computed when the document is loaded into an engine.
func (r *Repository) SaveDocument(ctx context.Context, d vectorstore.Document) error {
	if d.ID == "" {
		return fmt.Errorf("document id is required")
	}
	m := d.Metadata

	var lat, lon sql.NullFloat64
	if m.Location != nil {
		lat = sql.NullFloat64{Float64: m.Location.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: m.Location.Longitude, Valid: true}
	}
	var confidence sql.NullFloat64
	if m.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *m.Confidence, Valid: true}
	}
	var observedAt sql.NullString
	if !m.Timestamp.IsZero() {
		observedAt = sql.NullString{String: m.Timestamp.UTC().Format(time.RFC3339Nano), Valid: true}
	}
	bounds, err := encodeOptional(m.Bounds, m.Bounds != nil)
	if err != nil {
		return fmt.Errorf("encode bounds: %w", err)
	}
	tags, err := encodeOptional(m.Tags, len(m.Tags) > 0)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	sc, err := encodeOptional(d.SpatialContext, d.SpatialContext != nil)
	if err != nil {
		return fmt.Errorf("encode spatial context: %w", err)
	}

	query := `
		INSERT INTO documents (id, content, doc_type, latitude, longitude, bounds,
			observed_at, source, tags, confidence, spatial_context)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			content = excluded.content,
			doc_type = excluded.doc_type,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			bounds = excluded.bounds,
			observed_at = excluded.observed_at,
			source = excluded.source,
			tags = excluded.tags,
			confidence = excluded.confidence,
			spatial_context = excluded.spatial_context
	`
	_, err = r.db.ExecContext(ctx, query,
		d.ID, d.Content, string(m.DocType), lat, lon, bounds,
		observedAt, m.Source, tags, confidence, sc,
	)
	return err
}

// GetDocument retrieves a document by ID.
func (r *Repository) GetDocument(ctx context.Context, id string) (vectorstore.Document, error) {
	query := `
		SELECT id, content, doc_type, latitude, longitude, bounds,
			observed_at, source, tags, confidence, spatial_context
		FROM documents WHERE id = $1
	`
	d, err := scanDocument(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return vectorstore.Document{}, ErrNotFound
	}
	return d, err
}

// ListDocuments returns every document ordered by id.
func (r *Repository) ListDocuments(ctx context.Context) ([]vectorstore.Document, error) {
	query := `
		SELECT id, content, doc_type, latitude, longitude, bounds,
			observed_at, source, tags, confidence, spatial_context
		FROM documents ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []vectorstore.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DeleteDocument reports whether a row was removed.
func (r *Repository) DeleteDocument(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Counts returns the number of stored features and documents.
func (r *Repository) Counts(ctx context.Context) (features, documents int, err error) {
	if err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM features`).Scan(&features); err != nil {
		return 0, 0, err
	}
	if err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&documents); err != nil {
		return 0, 0, err
	}
	return features, documents, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFeature(s scanner) (spatial.Feature, error) {
	var (
		f            spatial.Feature
		geometryType string
		geometry     string
		props, meta  sql.NullString
	)
	if err := s.Scan(&f.ID, &f.Name, &geometryType, &geometry, &props, &meta); err != nil {
		return spatial.Feature{}, err
	}
	f.GeometryType = spatial.GeometryType(geometryType)
	if err := json.Unmarshal([]byte(geometry), &f.Geometry); err != nil {
		return spatial.Feature{}, fmt.Errorf("decode geometry of %q: %w", f.ID, err)
	}
	if err := decodeOptional(props, &f.Properties); err != nil {
		return spatial.Feature{}, fmt.Errorf("decode properties of %q: %w", f.ID, err)
	}
	if err := decodeOptional(meta, &f.Metadata); err != nil {
		return spatial.Feature{}, fmt.Errorf("decode metadata of %q: %w", f.ID, err)
	}
	return f, nil
}

func scanDocument(s scanner) (vectorstore.Document, error) {
	var (
		d                    vectorstore.Document
		docType              string
		lat, lon, confidence sql.NullFloat64
		bounds, tags, sc     sql.NullString
		observedAt, source   sql.NullString
	)
	err := s.Scan(&d.ID, &d.Content, &docType, &lat, &lon, &bounds,
		&observedAt, &source, &tags, &confidence, &sc)
	if err != nil {
		return vectorstore.Document{}, err
	}

	m := &d.Metadata
	m.DocType = vectorstore.DocType(docType)
	m.Source = source.String
	if lat.Valid && lon.Valid {
		m.Location = &geo.Coordinates{Latitude: lat.Float64, Longitude: lon.Float64}
	}
	if confidence.Valid {
		c := confidence.Float64
		m.Confidence = &c
	}
	if observedAt.Valid && observedAt.String != "" {
		ts, err := time.Parse(time.RFC3339Nano, observedAt.String)
		if err != nil {
			return vectorstore.Document{}, fmt.Errorf("decode timestamp of %q: %w", d.ID, err)
		}
		m.Timestamp = ts
	}
	if err := decodeOptional(bounds, &m.Bounds); err != nil {
		return vectorstore.Document{}, fmt.Errorf("decode bounds of %q: %w", d.ID, err)
	}
	if err := decodeOptional(tags, &m.Tags); err != nil {
		return vectorstore.Document{}, fmt.Errorf("decode tags of %q: %w", d.ID, err)
	}
	if err := decodeOptional(sc, &d.SpatialContext); err != nil {
		return vectorstore.Document{}, fmt.Errorf("decode spatial context of %q: %w", d.ID, err)
	}
	return d, nil
}

func encodeOptional(v any, present bool) (sql.NullString, error) {
	if !present {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeOptional(s sql.NullString, dst any) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), dst)
}
