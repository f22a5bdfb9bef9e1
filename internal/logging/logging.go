// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging sets up the leveled file logger.  The terminal
// belongs to the user interface, so nothing is logged there.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/gologme/log"
	"github.com/pkg/errors"
)

var levels = []string{"error", "warn", "info", "debug"}

// New returns a logger writing to w with every level up to and
// including level enabled.
func New(w io.Writer, level string) (*log.Logger, error) {
	logger := log.New(w, "[mailtriage] ", log.LstdFlags|log.Lmsgprefix)
	for _, l := range levels {
		logger.EnableLevel(l)
		if l == level {
			return logger, nil
		}
	}
	return nil, errors.Errorf("unknown log level %q", level)
}

// Open appends to the log file at path, creating it and its
// directory if needed.  The returned closer closes the file.
func Open(path, level string) (*log.Logger, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, errors.Wrapf(err, "creating log directory for %s", path)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening log file %s", path)
	}
	logger, err := New(f, level)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return logger, f, nil
}
