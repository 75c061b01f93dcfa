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
Package sampcomp compares the signal of nanopore reads between two
conditions, reference by reference.

A run is a pipeline of goroutines connected by bounded channels. A
dispatcher enqueues one task per reference of a whitelist. Workers
read the records of every read of a reference, aggregate them into a
PositionTable, and run the comparison methods on it. A single writer
persists the tables into a result store. A supervisor starts the
components, waits for the first error or for the writer to finish, and
stops the whole pipeline on failure.

Termination is signalled in-band. The dispatcher sends one termination
marker per worker after the last task, every worker sends one marker on
the result channel when it stops, and the writer finishes after it has
seen one marker per worker. Components report an error before they send
their markers.
*/
package sampcomp

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/exascience/nanocompore/utils"
)

// A Whitelist yields the references to analyze.
type Whitelist interface {
	// Len returns the number of references.
	Len() int
	// Iterate calls yield for every reference, in a deterministic
	// order, and stops at the first error.
	Iterate(yield func(*ReferenceDescriptor) error) error
}

// A SequenceSource returns reference sequences. It must be safe for
// concurrent use.
type SequenceSource interface {
	Sequence(refID string) ([]byte, error)
}

// CompareOptions configures the comparison of a PositionTable.
type CompareOptions struct {
	Methods                []string
	SequenceContext        int
	SequenceContextWeights string
	MinCoverage            int
	AllowWarnings          bool
	Logit                  bool
	ReplicateDeficient     bool
	Seed                   int64
}

// A Comparator adds statistical test results to the positions of a
// table. It must be safe for concurrent use.
type Comparator interface {
	Compare(table *PositionTable, opts CompareOptions) error
}

// Metadata describes a completed run.
type Metadata struct {
	RunID                  string
	Timestamp              time.Time
	ToolName               string
	ToolVersion            string
	ComparisonMethods      []string
	ResultFields           []string
	SequenceContext        int
	SequenceContextWeights string
	MinCoverage            int
	SampleCount            int
}

// A ResultStore persists the tables of a run. Only the writer uses it.
type ResultStore interface {
	Put(table *PositionTable) error
	PutIndex(refIDs []string) error
	PutMetadata(md *Metadata) error
	Close() error
}

// A StoreCreator creates a fresh ResultStore at path, replacing any
// previous store there.
type StoreCreator func(path string) (ResultStore, error)

// Progress is notified once for every reference written.
type Progress interface {
	Add(n int) error
	Close() error
}

// Collaborators are the external dependencies of a Pipeline.
type Collaborators struct {
	Whitelist   Whitelist
	Sequences   SequenceSource
	Comparator  Comparator
	CreateStore StoreCreator
	Progress    Progress
	Logger      *zap.Logger
}

// State is the lifecycle state of a Pipeline.
type State int32

const (
	StateInit State = iota
	StateRunning
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// A Pipeline is a single run of the comparison. It cannot be restarted.
type Pipeline struct {
	opts   Options
	layout *Layout
	deps   Collaborators
	logger *zap.Logger
	runID  string
	state  atomic.Int32
}

// New checks the options and collaborators and returns a Pipeline in
// StateInit.
func New(opts Options, deps Collaborators) (*Pipeline, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if deps.Whitelist == nil {
		return nil, errors.New("missing whitelist")
	}
	if deps.Sequences == nil {
		return nil, errors.New("missing sequence source")
	}
	if deps.CreateStore == nil {
		return nil, errors.New("missing result store")
	}
	if len(opts.Methods) > 0 && deps.Comparator == nil {
		return nil, errors.New("missing comparator for the comparison methods")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	runID := uuid.NewString()
	return &Pipeline{
		opts:   opts,
		layout: NewLayout(opts.Conditions),
		deps:   deps,
		logger: logger.With(zap.String("run_id", runID)),
		runID:  runID,
	}, nil
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// RunID returns the identifier recorded in the metadata of the run.
func (p *Pipeline) RunID() string {
	return p.runID
}

// Layout returns the condition-to-sample schema of the run.
func (p *Pipeline) Layout() *Layout {
	return p.layout
}

func (p *Pipeline) metadata(fields []string) *Metadata {
	return &Metadata{
		RunID:                  p.runID,
		Timestamp:              time.Now().UTC(),
		ToolName:               utils.ProgramName,
		ToolVersion:            utils.ProgramVersion,
		ComparisonMethods:      p.opts.Methods,
		ResultFields:           fields,
		SequenceContext:        p.opts.SequenceContext,
		SequenceContextWeights: p.opts.SequenceContextWeights,
		MinCoverage:            p.opts.MinCoverage,
		SampleCount:            p.layout.SampleCount(),
	}
}
