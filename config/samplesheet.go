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

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/exascience/nanocompore/sampcomp"
)

/*
ParseSampleSheet reads a YAML sample sheet of the form

	condition1:
	  sample1: path/to/file1.tsv
	  sample2: path/to/file2.tsv
	condition2:
	  sample3: path/to/file3.tsv

Conditions and samples keep the order of the file. Relative paths are
resolved against the directory of the sample sheet.
*/
func ParseSampleSheet(filename string) ([]sampcomp.Condition, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open sample sheet: %w", err)
	}
	defer f.Close()

	var root yaml.Node
	if err := yaml.NewDecoder(f).Decode(&root); err != nil {
		return nil, fmt.Errorf("parse sample sheet %v: %w", filename, err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) != 1 || root.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("sample sheet %v is not a mapping of conditions", filename)
	}
	dir := filepath.Dir(filename)
	doc := root.Content[0]
	var conditions []sampcomp.Condition
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key, value := doc.Content[i], doc.Content[i+1]
		if value.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("condition %v in sample sheet %v is not a mapping of samples", key.Value, filename)
		}
		cond := sampcomp.Condition{Label: key.Value}
		for j := 0; j+1 < len(value.Content); j += 2 {
			label, path := value.Content[j], value.Content[j+1]
			if path.Kind != yaml.ScalarNode || path.Value == "" {
				return nil, fmt.Errorf("sample %v of condition %v in sample sheet %v has no file", label.Value, key.Value, filename)
			}
			cond.Samples = append(cond.Samples, sampcomp.Sample{Label: label.Value, Path: resolve(dir, path.Value)})
		}
		conditions = append(conditions, cond)
	}
	if len(conditions) == 0 {
		return nil, errors.New("empty sample sheet")
	}
	return conditions, nil
}
