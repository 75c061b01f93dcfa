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

import "fmt"

// Names of the pipeline components, as reported in an Error.
const (
	DispatcherComponent = "dispatcher"
	WriterComponent     = "writer"
	SupervisorComponent = "supervisor"
)

// WorkerComponent returns the component name of the worker with the given id.
func WorkerComponent(id int) string {
	return fmt.Sprintf("worker %v", id)
}

// An Error is the failure of one pipeline component. Errors cross
// goroutine boundaries flattened to a message, tagged with the component
// that failed and, for workers, the reference being processed.
type Error struct {
	Component string
	RefID     string
	Message   string

	cause error
}

func (e *Error) Error() string {
	if e.RefID != "" {
		return fmt.Sprintf("%v failed while processing reference %v: %v", e.Component, e.RefID, e.Message)
	}
	return fmt.Sprintf("%v failed: %v", e.Component, e.Message)
}

// Unwrap returns the context error of an interrupted run, and nil otherwise.
func (e *Error) Unwrap() error {
	return e.cause
}

func newError(component, refID string, err error) *Error {
	return &Error{Component: component, RefID: refID, Message: err.Error()}
}
