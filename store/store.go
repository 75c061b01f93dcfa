// nanocompore: comparing nanopore signal data between two conditions.
// Copyright (c) 2021 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/nanocompore/blob/master/LICENSE.txt>.

/*
Package store persists the position tables of a run in a SQLite
database.

Every table is stored gob-encoded under its reference identifier.
Alongside the tables, the database holds the ordered list of written
references and a single metadata row describing the run. A database is
written by exactly one writer, guarded by a lock file next to it.
*/
package store

import (
	"bytes"
	"database/sql"
	_ "embed"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/exascience/nanocompore/sampcomp"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// ErrNotFound is returned for references that are not in the store.
var ErrNotFound = errors.New("reference not found")

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// A Store is an open result database.
type Store struct {
	db   *sqlx.DB
	path string
	lock *flock.Flock
}

var _ sampcomp.ResultStore = (*Store)(nil)

// LockPath returns the path of the lock file of a database.
func LockPath(path string) string {
	return path + ".lock"
}

func open(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	return db, nil
}

/*
Create creates a fresh database at path, replacing any previous
database and its journal files. It fails when another writer holds the
lock of path.
*/
func Create(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	lock := flock.New(LockPath(path))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock result store: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("result store %v is locked by another run", path)
	}
	for _, name := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			_ = lock.Unlock()
			return nil, fmt.Errorf("remove previous result store: %w", err)
		}
	}
	db, err := open(path)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	tx, err := db.Beginx()
	if err == nil {
		if _, err = tx.Exec(schemaSQL); err == nil {
			if _, err = tx.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err == nil {
				err = tx.Commit()
			}
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}
	if err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, path: path, lock: lock}, nil
}

// CreateResultStore is Create as a sampcomp.StoreCreator.
func CreateResultStore(path string) (sampcomp.ResultStore, error) {
	return Create(path)
}

// Open opens an existing database for reading.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open result store: %w", err)
	}
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	var version int
	if err := db.Get(&version, "SELECT version FROM schema_version LIMIT 1"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		_ = db.Close()
		return nil, fmt.Errorf("%w: database has version %d, expected %d", ErrSchemaMismatch, version, schemaVersion)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the path of the database.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database and releases the writer lock.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if s.lock != nil {
		if uerr := s.lock.Unlock(); err == nil && uerr != nil {
			err = fmt.Errorf("unlock result store: %w", uerr)
		}
	}
	return err
}

// Put stores a table under its reference identifier, replacing any
// previous table of the same reference.
func (s *Store) Put(table *sampcomp.PositionTable) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(table); err != nil {
		return fmt.Errorf("encode table %v: %w", table.RefID, err)
	}
	if _, err := s.db.Exec(
		"INSERT OR REPLACE INTO tables (ref_id, positions, data) VALUES (?, ?, ?)",
		table.RefID, table.Len(), buf.Bytes(),
	); err != nil {
		return fmt.Errorf("insert table %v: %w", table.RefID, err)
	}
	return nil
}

// PutIndex records the identifiers of the written references, in order.
func (s *Store) PutIndex(refIDs []string) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("begin index tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec("DELETE FROM ref_index"); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	stmt, err := tx.Preparex("INSERT INTO ref_index (idx, ref_id) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("prepare index insert: %w", err)
	}
	defer stmt.Close()
	for i, refID := range refIDs {
		if _, err := stmt.Exec(i, refID); err != nil {
			return fmt.Errorf("insert index entry %v: %w", refID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index: %w", err)
	}
	return nil
}

type metadataRow struct {
	RunID                  string `db:"run_id"`
	Timestamp              string `db:"timestamp"`
	ToolName               string `db:"tool_name"`
	ToolVersion            string `db:"tool_version"`
	ComparisonMethods      string `db:"comparison_methods"`
	ResultFields           string `db:"result_fields"`
	SequenceContext        int    `db:"sequence_context"`
	SequenceContextWeights string `db:"sequence_context_weights"`
	MinCoverage            int    `db:"min_coverage"`
	SampleCount            int    `db:"sample_count"`
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// PutMetadata replaces the metadata of the run.
func (s *Store) PutMetadata(md *sampcomp.Metadata) error {
	row := metadataRow{
		RunID:                  md.RunID,
		Timestamp:              md.Timestamp.UTC().Format(time.RFC3339Nano),
		ToolName:               md.ToolName,
		ToolVersion:            md.ToolVersion,
		ComparisonMethods:      strings.Join(md.ComparisonMethods, ","),
		ResultFields:           strings.Join(md.ResultFields, ","),
		SequenceContext:        md.SequenceContext,
		SequenceContextWeights: md.SequenceContextWeights,
		MinCoverage:            md.MinCoverage,
		SampleCount:            md.SampleCount,
	}
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("begin metadata tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec("DELETE FROM metadata"); err != nil {
		return fmt.Errorf("clear metadata: %w", err)
	}
	if _, err := tx.NamedExec(`INSERT INTO metadata (
		run_id, timestamp, tool_name, tool_version, comparison_methods, result_fields,
		sequence_context, sequence_context_weights, min_coverage, sample_count
	) VALUES (
		:run_id, :timestamp, :tool_name, :tool_version, :comparison_methods, :result_fields,
		:sequence_context, :sequence_context_weights, :min_coverage, :sample_count
	)`, row); err != nil {
		return fmt.Errorf("insert metadata: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit metadata: %w", err)
	}
	return nil
}

// Table returns the table of a reference.
func (s *Store) Table(refID string) (*sampcomp.PositionTable, error) {
	var data []byte
	err := s.db.Get(&data, "SELECT data FROM tables WHERE ref_id = ?", refID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, refID)
	}
	if err != nil {
		return nil, fmt.Errorf("read table %v: %w", refID, err)
	}
	var table sampcomp.PositionTable
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&table); err != nil {
		return nil, fmt.Errorf("decode table %v: %w", refID, err)
	}
	return &table, nil
}

// RefIDs returns the identifiers of the written references, in the
// order they were written.
func (s *Store) RefIDs() ([]string, error) {
	var ids []string
	if err := s.db.Select(&ids, "SELECT ref_id FROM ref_index ORDER BY idx"); err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	return ids, nil
}

// Metadata returns the metadata of the run. It returns ErrNotFound when
// the run did not complete.
func (s *Store) Metadata() (*sampcomp.Metadata, error) {
	var row metadataRow
	err := s.db.Get(&row, "SELECT * FROM metadata LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no metadata", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, row.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("parse metadata timestamp: %w", err)
	}
	return &sampcomp.Metadata{
		RunID:                  row.RunID,
		Timestamp:              ts,
		ToolName:               row.ToolName,
		ToolVersion:            row.ToolVersion,
		ComparisonMethods:      splitList(row.ComparisonMethods),
		ResultFields:           splitList(row.ResultFields),
		SequenceContext:        row.SequenceContext,
		SequenceContextWeights: row.SequenceContextWeights,
		MinCoverage:            row.MinCoverage,
		SampleCount:            row.SampleCount,
	}, nil
}

// Count returns the number of stored tables.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.Get(&n, "SELECT COUNT(1) FROM tables"); err != nil {
		return 0, fmt.Errorf("count tables: %w", err)
	}
	return n, nil
}
