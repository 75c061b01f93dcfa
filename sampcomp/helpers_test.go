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

package sampcomp

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/exascience/nanocompore/eventalign"
	"github.com/exascience/nanocompore/internal/testsupport"
)

type sliceWhitelist struct {
	refs []*ReferenceDescriptor
	err  error
}

func (w *sliceWhitelist) Len() int {
	return len(w.refs)
}

func (w *sliceWhitelist) Iterate(yield func(*ReferenceDescriptor) error) error {
	for _, ref := range w.refs {
		if err := yield(ref); err != nil {
			return err
		}
	}
	return w.err
}

type mapSequences map[string]string

func (m mapSequences) Sequence(refID string) ([]byte, error) {
	seq, ok := m[refID]
	if !ok {
		return nil, fmt.Errorf("unknown reference %v", refID)
	}
	return []byte(seq), nil
}

type memStore struct {
	mu       sync.Mutex
	tables   map[string]*PositionTable
	index    []string
	metadata *Metadata
	closed   bool
	putErr   error
}

func newMemStore() *memStore {
	return &memStore{tables: make(map[string]*PositionTable)}
}

func (s *memStore) create(string) (ResultStore, error) {
	return s, nil
}

func (s *memStore) Put(table *PositionTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.tables[table.RefID] = table
	return nil
}

func (s *memStore) PutIndex(refIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = append([]string(nil), refIDs...)
	return nil
}

func (s *memStore) PutMetadata(md *Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata = md
	return nil
}

func (s *memStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type comparatorFunc func(table *PositionTable, opts CompareOptions) error

func (f comparatorFunc) Compare(table *PositionTable, opts CompareOptions) error {
	return f(table, opts)
}

// fixture is a set of samples with one file per sample, one condition
// per row of records.
type fixture struct {
	conditions []Condition
	handles    map[string][][][]ReadHandle
}

func newFixture(t *testing.T, records [][][]*eventalign.Record) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{handles: make(map[string][][][]ReadHandle)}
	for i, samples := range records {
		cond := Condition{Label: fmt.Sprintf("cond%v", i+1)}
		for j, recs := range samples {
			label := fmt.Sprintf("s%v", j+1)
			path := filepath.Join(dir, cond.Label+"_"+label+".tsv")
			for _, entry := range testsupport.WriteSample(t, path, recs...) {
				reads := f.handles[entry.RefID]
				if reads == nil {
					reads = make([][][]ReadHandle, len(records))
					for k := range reads {
						reads[k] = make([][]ReadHandle, len(records[k]))
					}
					f.handles[entry.RefID] = reads
				}
				reads[i][j] = append(reads[i][j], ReadHandle{
					ReadID:     entry.ReadID,
					ByteOffset: entry.ByteOffset,
					ByteLen:    entry.ByteLen,
				})
			}
			cond.Samples = append(cond.Samples, Sample{Label: label, Path: path})
		}
		f.conditions = append(f.conditions, cond)
	}
	return f
}

func (f *fixture) whitelist() *sliceWhitelist {
	var refIDs []string
	for refID := range f.handles {
		refIDs = append(refIDs, refID)
	}
	sort.Strings(refIDs)
	wl := &sliceWhitelist{}
	for _, refID := range refIDs {
		wl.refs = append(wl.refs, &ReferenceDescriptor{RefID: refID, Reads: f.handles[refID]})
	}
	return wl
}

// newTestPipeline builds a pipeline without validating its options.
func newTestPipeline(t *testing.T, opts Options, deps Collaborators) *Pipeline {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = zaptest.NewLogger(t)
	}
	if opts.OutPath == "" {
		opts.OutPath = t.TempDir()
	}
	return &Pipeline{
		opts:   opts,
		layout: NewLayout(opts.Conditions),
		deps:   deps,
		logger: deps.Logger,
		runID:  "test-run",
	}
}

func testOptions(conditions []Condition, nthreads int) Options {
	opts := DefaultOptions()
	opts.Conditions = conditions
	opts.Methods = nil
	opts.NThreads = nthreads
	opts.ShutdownTimeout = 2 * time.Second
	return opts
}

func drainTasks(tasks chan task) (refs []string, markers int) {
	for {
		select {
		case t := <-tasks:
			if t.ref == nil {
				markers++
			} else {
				refs = append(refs, t.ref.RefID)
			}
		default:
			return refs, markers
		}
	}
}

func drainErrors(errc chan error) (errs []error) {
	for {
		select {
		case err := <-errc:
			errs = append(errs, err)
		default:
			return errs
		}
	}
}

func asError(t *testing.T, err error) *Error {
	t.Helper()
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	return e
}
