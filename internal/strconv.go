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

package internal

import (
	"fmt"
	"strconv"
)

// ParseInt is strconv.ParseInt on a byte slice, with the column name in
// the error message.
func ParseInt(column string, b []byte) (int, error) {
	result, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q in column %v", b, column)
	}
	return int(result), nil
}

// ParseFloat is strconv.ParseFloat on a byte slice, with the column name in
// the error message.
func ParseFloat(column string, b []byte) (float64, error) {
	result, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q in column %v", b, column)
	}
	return result, nil
}
