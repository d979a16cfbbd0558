// Copyright 2023 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package workspace_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"cros.local/alchemist/internal/workspace"
)

func TestNewProfilerDisabled(t *testing.T) {
	p, err := workspace.NewProfiler("")
	if err != nil {
		t.Fatal(err)
	}
	if p != nil {
		t.Fatal("NewProfiler(\"\") should return a nil Profiler")
	}
	// Must be safe to use even when disabled.
	done := p.Event("whatever")
	done()
	if err := p.Close(); err != nil {
		t.Errorf("Close on a nil Profiler: %v", err)
	}
}

func TestProfilerWritesTraceEvents(t *testing.T) {
	dir := t.TempDir()
	p, err := workspace.NewProfiler(dir)
	if err != nil {
		t.Fatal(err)
	}
	done := p.Event("build")
	done()
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d files in %s, want 1", len(entries), dir)
	}

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	var events []map[string]any
	if err := json.Unmarshal(data, &events); err != nil {
		t.Fatalf("unmarshalling trace: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0]["ph"] != "B" || events[1]["ph"] != "E" {
		t.Errorf("events = %+v, want a B/E pair", events)
	}
}
