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

	"go.uber.org/zap"

	"github.com/exascience/nanocompore/eventalign"
	"github.com/exascience/nanocompore/internal"
)

type worker struct {
	*run
	id      int
	logger  *zap.Logger
	readers [][]eventalign.Reader
}

// work processes tasks until it receives a termination marker. It
// always sends exactly one termination marker on the result channel
// before it returns, also when it fails.
func (r *run) work(ctx context.Context, id int) {
	w := &worker{
		run:    r,
		id:     id,
		logger: r.logger.With(zap.String("component", WorkerComponent(id))),
	}
	var refID string
	err := func() (err error) {
		defer recoverPanic(&err)
		if err = w.open(); err != nil {
			return err
		}
		for {
			var t task
			select {
			case t = <-r.tasks:
			case <-ctx.Done():
				return ctx.Err()
			}
			if t.ref == nil {
				return nil
			}
			refID = t.ref.RefID
			table, err := w.process(t.ref)
			if err != nil {
				return err
			}
			select {
			case r.results <- result{table: table}:
			case <-ctx.Done():
				return ctx.Err()
			}
			refID = ""
		}
	}()
	if cerr := w.close(); err == nil && cerr != nil {
		err = cerr
	}
	switch {
	case err == nil:
		w.logger.Debug("worker finished")
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		w.logger.Debug("worker interrupted")
	default:
		w.logger.Error("worker failed", zap.String("ref_id", refID), zap.Error(err))
		r.report(newError(WorkerComponent(id), refID, err))
	}
	select {
	case r.results <- result{}:
	case <-ctx.Done():
	}
}

func (w *worker) open() error {
	w.readers = make([][]eventalign.Reader, len(w.opts.Conditions))
	for i, cond := range w.opts.Conditions {
		w.readers[i] = make([]eventalign.Reader, len(cond.Samples))
		for j, sample := range cond.Samples {
			reader, err := eventalign.Open(sample.Path, w.opts.ReaderMode)
			if err != nil {
				return err
			}
			w.readers[i][j] = reader
		}
	}
	return nil
}

func (w *worker) close() (err error) {
	for _, readers := range w.readers {
		for _, reader := range readers {
			if reader == nil {
				continue
			}
			if cerr := reader.Close(); err == nil {
				err = cerr
			}
		}
	}
	w.readers = nil
	return err
}

// process builds and compares the PositionTable of one reference.
func (w *worker) process(ref *ReferenceDescriptor) (*PositionTable, error) {
	if len(ref.Reads) != len(w.layout.Samples) {
		return nil, fmt.Errorf("reads of %v conditions, expected %v", len(ref.Reads), len(w.layout.Samples))
	}
	for i, samples := range ref.Reads {
		if len(samples) != len(w.layout.Samples[i]) {
			return nil, fmt.Errorf("reads of %v samples in condition %v, expected %v",
				len(samples), w.layout.Conditions[i], len(w.layout.Samples[i]))
		}
	}
	seq, err := w.deps.Sequences.Sequence(ref.RefID)
	if err != nil {
		return nil, err
	}
	table, err := NewPositionTable(ref.RefID, seq, w.layout)
	if err != nil {
		return nil, err
	}
	for i, samples := range ref.Reads {
		for j, reads := range samples {
			for _, read := range reads {
				if err := w.fold(table, i, j, read); err != nil {
					return nil, fmt.Errorf("%v, in read %v of sample %v", err, read.ReadID, w.layout.Samples[i][j])
				}
			}
		}
	}
	if len(w.opts.Methods) > 0 {
		if err := w.deps.Comparator.Compare(table, w.opts.CompareOptions()); err != nil {
			return nil, fmt.Errorf("%v, while comparing conditions", err)
		}
	}
	w.logger.Debug("reference processed", zap.String("ref_id", ref.RefID), zap.Int("reads", ref.ReadCount()))
	return table, nil
}

/*
fold adds the events of one read to the table.

With k-mer statistics, positions skipped between two consecutive events
of the read count as missing for the sample, and every event contributes
its valid, ambiguous, and mismatching fractions of the dwell time.
*/
func (w *worker) fold(table *PositionTable, cond, sample int, read ReadHandle) error {
	buf := internal.ReserveByteBuffer(read.ByteLen)
	defer internal.ReleaseByteBuffer(buf)
	data, err := w.readers[cond][sample].ReadRecord(read.ByteOffset, read.ByteLen, buf)
	if err != nil {
		return err
	}
	rec, err := eventalign.ParseRecord(data)
	if err != nil {
		return err
	}
	if rec.Header.ReadID != read.ReadID || rec.Header.RefID != table.RefID {
		return fmt.Errorf("index and data files are not matching: record of read %v on %v, expected read %v on %v",
			rec.Header.ReadID, rec.Header.RefID, read.ReadID, table.RefID)
	}
	prev, havePrev := 0, false
	for _, ev := range rec.Events {
		if ev.RefPos < 0 || ev.RefPos >= table.Len() {
			return fmt.Errorf("position %v out of range of reference of %v positions", ev.RefPos, table.Len())
		}
		pos := &table.Positions[ev.RefPos]
		pos.observeKmer(ev.RefKmer)
		stats := &pos.Data[cond][sample]
		stats.Intensity = append(stats.Intensity, ev.Median)
		stats.Dwell = append(stats.Dwell, ev.DwellTime)
		stats.Coverage++
		if !rec.KmerStats {
			continue
		}
		if havePrev && ev.RefPos-prev > 1 {
			for missing := prev + 1; missing < ev.RefPos; missing++ {
				table.Positions[missing].Data[cond][sample].KmerStats.Missing++
			}
		}
		if ev.DwellTime == 0 {
			return fmt.Errorf("zero dwell time at position %v", ev.RefPos)
		}
		stats.KmerStats.Valid += (ev.DwellTime - (ev.NNNNNDwellTime + ev.MismatchDwellTime)) / ev.DwellTime
		stats.KmerStats.NNNNN += ev.NNNNNDwellTime / ev.DwellTime
		stats.KmerStats.Mismatching += ev.MismatchDwellTime / ev.DwellTime
		prev, havePrev = ev.RefPos, true
	}
	return nil
}
