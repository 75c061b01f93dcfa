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
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

/*
Run executes the pipeline and returns the path of the result store.

It starts the dispatcher, the workers, and the writer, and then waits
for the first report. The writer reports success once everything is
written. Any other report, and cancellation of ctx, stops the run:
the remaining components are cancelled and joined, and components that
are still running after the shutdown timeout are abandoned. On failure
the store may hold some tables, but no reference index or metadata.

Run may only be called once.
*/
func (p *Pipeline) Run(ctx context.Context) (string, error) {
	if !p.state.CompareAndSwap(int32(StateInit), int32(StateRunning)) {
		return "", errors.New("pipeline already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := p.newRun()
	p.logger.Info("starting pipeline",
		zap.Int("references", p.deps.Whitelist.Len()),
		zap.Int("workers", r.workers),
		zap.Strings("methods", p.opts.Methods))

	var wg sync.WaitGroup
	wg.Add(r.workers + 2)
	go func() {
		defer wg.Done()
		r.dispatch(ctx)
	}()
	for id := 0; id < r.workers; id++ {
		go func(id int) {
			defer wg.Done()
			r.work(ctx, id)
		}(id)
	}
	go func() {
		defer wg.Done()
		r.write(ctx)
	}()

	var err error
	select {
	case err = <-r.errc:
	case <-ctx.Done():
		err = &Error{Component: SupervisorComponent, Message: "run interrupted: " + ctx.Err().Error(), cause: ctx.Err()}
	}
	if err != nil {
		p.logger.Error("an error occurred, stopping all components", zap.Error(err))
		cancel()
	}
	p.join(&wg)

	path := p.opts.DBPath()
	if err != nil {
		p.state.Store(int32(StateFailed))
		return path, err
	}
	p.state.Store(int32(StateSucceeded))
	p.logger.Info("pipeline finished", zap.String("path", path))
	return path, nil
}

func (p *Pipeline) join(wg *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(p.opts.ShutdownTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		p.logger.Warn("components still running after shutdown timeout, abandoning them",
			zap.Duration("timeout", p.opts.ShutdownTimeout))
	}
}
