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
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// A task carries one reference to a worker. The zero task is the
// termination marker.
type task struct {
	ref *ReferenceDescriptor
}

// A result carries one table to the writer. The zero result is the
// termination marker.
type result struct {
	table *PositionTable
}

// run holds the channels and collaborators of one pipeline execution.
type run struct {
	*Pipeline
	workers int
	tasks   chan task
	results chan result
	errc    chan error // one slot per component
	failed  atomic.Bool
}

func (p *Pipeline) newRun() *run {
	workers := p.opts.Workers()
	return &run{
		Pipeline: p,
		workers:  workers,
		tasks:    make(chan task, p.opts.QueueSize),
		results:  make(chan result, p.opts.QueueSize),
		errc:     make(chan error, workers+2),
	}
}

// report hands the outcome of a component to the supervisor. A failure
// is recorded before it is sent, so components that observe a
// termination marker sent after the report also observe the failure.
func (r *run) report(err error) {
	if err != nil {
		r.failed.Store(true)
	}
	r.errc <- err
}

func recoverPanic(err *error) {
	if p := recover(); p != nil {
		*err = fmt.Errorf("panic: %v", p)
	}
}

// dispatch enqueues every whitelisted reference, then one termination
// marker per worker. A failure of the whitelist is reported before the
// markers are sent.
func (r *run) dispatch(ctx context.Context) {
	logger := r.logger.With(zap.String("component", DispatcherComponent))
	n := 0
	err := func() (err error) {
		defer recoverPanic(&err)
		return r.deps.Whitelist.Iterate(func(ref *ReferenceDescriptor) error {
			logger.Debug("adding reference to task queue", zap.String("ref_id", ref.RefID))
			select {
			case r.tasks <- task{ref: ref}:
				n++
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()
	if err != nil && ctx.Err() == nil {
		logger.Error("dispatching references failed", zap.Error(err))
		r.report(newError(DispatcherComponent, "", err))
	}
	for i := 0; i < r.workers; i++ {
		select {
		case r.tasks <- task{}:
		case <-ctx.Done():
			logger.Debug("dispatcher interrupted", zap.Int("references", n))
			return
		}
	}
	logger.Debug("all references dispatched", zap.Int("references", n))
}
