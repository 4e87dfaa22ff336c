// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package config loads the JSON configuration files accepted by the
// -config flag. The format is JSON extended with comment lines: any
// line whose first non-space character is '#' is ignored. Unknown
// fields are rejected.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

func LoadFile(filename string, cfg interface{}) error {
	if filename == "" {
		return errors.New("no config file specified")
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := LoadData(data, cfg); err != nil {
		return fmt.Errorf("%v: %w", filename, err)
	}
	return nil
}

// LoadData parses JSON-with-#-comments into cfg. Comment lines are
// blanked rather than cut out so that decode errors report line
// numbers of the original file.
func LoadData(data []byte, cfg interface{}) error {
	lines := bytes.Split(data, []byte("\n"))
	for i, line := range lines {
		if trimmed := bytes.TrimSpace(line); len(trimmed) != 0 && trimmed[0] == '#' {
			lines[i] = nil
		}
	}
	stripped := bytes.Join(lines, []byte("\n"))
	dec := json.NewDecoder(bytes.NewReader(stripped))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return fmt.Errorf("failed to parse config file: line %v: %w",
				lineOf(stripped, syntaxErr.Offset), err)
		}
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	if dec.More() {
		return errors.New("failed to parse config file: trailing data after config object")
	}
	return nil
}

func lineOf(data []byte, offset int64) int {
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	return 1 + bytes.Count(data[:offset], []byte("\n"))
}
