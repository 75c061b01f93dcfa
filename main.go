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

// nanocompore compares the electrical signal of nanopore reads between
// two conditions to find positions with different modification status.
//
// Please see https://github.com/exascience/nanocompore for a
// documentation of the tool.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/exascience/nanocompore/cmd"
)

func main() {
	fmt.Fprint(os.Stderr, cmd.ProgramMessage)
	if err := cmd.NewRootCommand().Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
