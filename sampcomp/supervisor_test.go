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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/exascience/nanocompore/eventalign"
)

type blockingWhitelist struct {
	release chan struct{}
}

func (w *blockingWhitelist) Len() int {
	return 1
}

func (w *blockingWhitelist) Iterate(func(*ReferenceDescriptor) error) error {
	<-w.release
	return nil
}

func TestRunSucceeds(t *testing.T) {
	f := newFixture(t, [][][]*eventalign.Record{
		{{fullRead("r1", []float64{1, 2, 3})}, {fullRead("r2", []float64{1, 2, 3})}},
		{{fullRead("r3", []float64{4, 5, 6})}},
	})
	store := newMemStore()
	p := newTestPipeline(t, testOptions(f.conditions, 5), Collaborators{
		Whitelist:   f.whitelist(),
		Sequences:   mapSequences{"ref": refSeq},
		CreateStore: store.create,
	})

	path, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, p.opts.DBPath(), path)
	assert.Equal(t, StateSucceeded, p.State())
	require.Contains(t, store.tables, "ref")
	assert.Equal(t, [][]int{{1, 1}, {1}}, store.tables["ref"].Positions[1].Coverage())
	assert.Equal(t, []string{"ref"}, store.index)
	assert.True(t, store.closed)
	assert.Equal(t, 3, store.metadata.SampleCount)

	_, err = p.Run(context.Background())
	assert.Error(t, err)
	assert.Equal(t, StateSucceeded, p.State())
}

func TestRunFailsOnWorkerError(t *testing.T) {
	f := newFixture(t, [][][]*eventalign.Record{
		{{fullRead("r1", []float64{1, 2, 3})}},
		{{fullRead("r2", []float64{4, 5, 6})}},
	})
	store := newMemStore()
	p := newTestPipeline(t, testOptions(f.conditions, 4), Collaborators{
		Whitelist:   f.whitelist(),
		Sequences:   mapSequences{},
		CreateStore: store.create,
	})

	_, err := p.Run(context.Background())
	require.Error(t, err)
	e := asError(t, err)
	assert.Contains(t, []string{WorkerComponent(0), WorkerComponent(1)}, e.Component)
	assert.Equal(t, "ref", e.RefID)
	assert.Equal(t, StateFailed, p.State())
	assert.Nil(t, store.metadata)
}

func TestRunFailsOnDispatcherError(t *testing.T) {
	f := newFixture(t, [][][]*eventalign.Record{
		{{fullRead("r1", []float64{1, 2, 3})}},
		{{fullRead("r2", []float64{4, 5, 6})}},
	})
	wl := f.whitelist()
	wl.err = assert.AnError
	store := newMemStore()
	p := newTestPipeline(t, testOptions(f.conditions, 3), Collaborators{
		Whitelist:   wl,
		Sequences:   mapSequences{"ref": refSeq},
		CreateStore: store.create,
	})

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, DispatcherComponent, asError(t, err).Component)
	assert.Equal(t, StateFailed, p.State())
	assert.Nil(t, store.index)
	assert.Nil(t, store.metadata)
}

func TestRunFailsOnWriterError(t *testing.T) {
	f := newFixture(t, [][][]*eventalign.Record{
		{{fullRead("r1", []float64{1, 2, 3})}},
		{{fullRead("r2", []float64{4, 5, 6})}},
	})
	store := newMemStore()
	store.putErr = assert.AnError
	p := newTestPipeline(t, testOptions(f.conditions, 3), Collaborators{
		Whitelist:   f.whitelist(),
		Sequences:   mapSequences{"ref": refSeq},
		CreateStore: store.create,
	})

	_, err := p.Run(context.Background())
	require.Error(t, err)
	e := asError(t, err)
	assert.Equal(t, WriterComponent, e.Component)
	assert.Equal(t, "ref", e.RefID)
	assert.Equal(t, StateFailed, p.State())
}

func TestRunInterrupted(t *testing.T) {
	wl := &blockingWhitelist{release: make(chan struct{})}
	t.Cleanup(func() { close(wl.release) })
	opts := testOptions([]Condition{{Label: "a"}, {Label: "b"}}, 3)
	opts.ShutdownTimeout = 50 * time.Millisecond
	p := newTestPipeline(t, opts, Collaborators{
		Whitelist:   wl,
		Sequences:   mapSequences{},
		CreateStore: newMemStore().create,
		Logger:      zap.NewNop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	_, err := p.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, SupervisorComponent, asError(t, err).Component)
	assert.Equal(t, StateFailed, p.State())
	assert.Less(t, time.Since(start), 5*time.Second)
}
