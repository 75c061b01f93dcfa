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
	"fmt"
	"sort"

	"go.uber.org/zap"
)

var errRunFailed = errors.New("run failed")

// write persists tables until it has seen one termination marker per
// worker, then writes the reference index and the run metadata. It
// reports nil on success, after the store is closed. When another
// component has failed, the index and metadata are not written, so a
// store without metadata is incomplete.
func (r *run) write(ctx context.Context) {
	logger := r.logger.With(zap.String("component", WriterComponent))
	var refID string
	err := func() (err error) {
		defer recoverPanic(&err)
		store, err := r.deps.CreateStore(r.opts.DBPath())
		if err != nil {
			return err
		}
		defer func() {
			if cerr := store.Close(); err == nil && cerr != nil {
				err = fmt.Errorf("%v, while closing result store", cerr)
			}
		}()
		fields := make(map[string]struct{})
		var refIDs []string
		for done := 0; done < r.workers; {
			var res result
			select {
			case res = <-r.results:
			case <-ctx.Done():
				return ctx.Err()
			}
			if res.table == nil {
				done++
				continue
			}
			refID = res.table.RefID
			if err := store.Put(res.table); err != nil {
				return err
			}
			for _, field := range res.table.ResultFields() {
				fields[field] = struct{}{}
			}
			refIDs = append(refIDs, refID)
			if r.deps.Progress != nil {
				if err := r.deps.Progress.Add(1); err != nil {
					logger.Debug("updating progress failed", zap.Error(err))
				}
			}
			refID = ""
		}
		if r.failed.Load() {
			return errRunFailed
		}
		if err := store.PutIndex(refIDs); err != nil {
			return err
		}
		resultFields := make([]string, 0, len(fields))
		for field := range fields {
			resultFields = append(resultFields, field)
		}
		sort.Strings(resultFields)
		if err := store.PutMetadata(r.metadata(resultFields)); err != nil {
			return err
		}
		logger.Info("all references written", zap.Int("references", len(refIDs)), zap.String("path", r.opts.DBPath()))
		return nil
	}()
	if r.deps.Progress != nil {
		if cerr := r.deps.Progress.Close(); cerr != nil {
			logger.Debug("closing progress failed", zap.Error(cerr))
		}
	}
	switch {
	case err == nil:
		r.report(nil)
	case err == errRunFailed:
		logger.Warn("another component failed, reference index and metadata not written")
	case ctx.Err() != nil && err == ctx.Err():
		logger.Debug("writer interrupted")
	default:
		logger.Error("writer failed", zap.String("ref_id", refID), zap.Error(err))
		r.report(newError(WriterComponent, refID, err))
	}
}
