// Copyright 2023 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// traceEvent is one entry of the Chrome trace-event format (the JSON array
// form: https://some-chrome-tracing-format, as consumed by
// chrome://tracing and Perfetto).
type traceEvent struct {
	Name      string `json:"name"`
	Phase     string `json:"ph"`
	Timestamp int64  `json:"ts"`
	PID       int    `json:"pid"`
	TID       int    `json:"tid"`
}

// Profiler accumulates trace events for one process run and writes them
// out as a single Chrome trace-event JSON file on Close. A nil *Profiler
// is valid and records nothing, so callers can unconditionally defer
// Close without checking whether profiling was requested.
type Profiler struct {
	mu     sync.Mutex
	events []traceEvent
	start  time.Time
	path   string
}

// NewProfiler starts a profiler writing to dir/<pid>.trace.json, or
// returns nil if dir is empty (profiling not requested).
func NewProfiler(dir string) (*Profiler, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Profiler{
		start: time.Now(),
		path:  filepath.Join(dir, fmt.Sprintf("%d.trace.json", os.Getpid())),
	}, nil
}

// Event records an instantaneous duration-pair event named name, from now
// until the returned function is called.
func (p *Profiler) Event(name string) func() {
	if p == nil {
		return func() {}
	}
	p.record(name, "B")
	return func() { p.record(name, "E") }
}

func (p *Profiler) record(name, phase string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, traceEvent{
		Name:      name,
		Phase:     phase,
		Timestamp: time.Since(p.start).Microseconds(),
		PID:       os.Getpid(),
		TID:       1,
	})
}

// Close writes the accumulated events to disk. It is a no-op on a nil
// Profiler.
func (p *Profiler) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	f, err := os.Create(p.path)
	if err != nil {
		return err
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(p.events)
}
