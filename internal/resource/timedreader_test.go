// Copyright (c) 2025 Hobu, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package resource

import (
	"sync"
	"testing"

	"github.com/hobu/greyhound/internal/reader"
)

// TestTimedReader_ConcurrentGetConstructsOnce exercises the invariant that
// at most one Reader is ever constructed for a given TimedReader: N
// concurrent callers racing through the lazy-init mutex in Get must all
// observe the same underlying Reader instance rather than each winning a
// separate construction.
func TestTimedReader_ConcurrentGetConstructsOnce(t *testing.T) {
	root := t.TempDir()
	writeFixtureResource(t, root, "autzen")

	m, err := NewManager(testConfig([]string{root}), discardLogger())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Shutdown()

	tr := m.timedReader("autzen")

	const n = 32
	var wg sync.WaitGroup
	results := make([]reader.Reader, n)
	errs := make([]error, n)

	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start.Wait()
			results[i], errs[i] = tr.Get(t.Context())
		}(i)
	}
	start.Done()
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Get[%d]: %v", i, err)
		}
	}

	first := results[0]
	if first == nil {
		t.Fatal("expected a non-nil Reader")
	}
	for i, r := range results {
		if r != first {
			t.Errorf("Get[%d] returned a different Reader instance than Get[0], expected exactly one construction", i)
		}
	}
}
