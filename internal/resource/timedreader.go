// Copyright (c) 2025 Hobu, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package resource

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hobu/greyhound/internal/reader"
)

// TimedReader owns the lazy construction of one named resource's Reader
// and tracks when it was last touched, so the Manager's sweeper can evict
// it once idle.
type TimedReader struct {
	name    string
	manager *Manager

	mu      sync.Mutex
	reader  reader.Reader
	touched atomic.Int64 // unix nanos

	borrows atomic.Int32
}

func newTimedReader(m *Manager, name string) *TimedReader {
	tr := &TimedReader{name: name, manager: m}
	tr.touched.Store(time.Now().UnixNano())
	return tr
}

// Name returns the resource name this TimedReader was constructed for.
func (t *TimedReader) Name() string { return t.name }

// Touch updates last-touched to now.
func (t *TimedReader) Touch() { t.touched.Store(time.Now().UnixNano()) }

// Since reports the time elapsed since the last Touch.
func (t *TimedReader) Since() time.Duration {
	return time.Since(time.Unix(0, t.touched.Load()))
}

// Exists reports whether the underlying Reader is currently constructed.
func (t *TimedReader) Exists() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reader != nil
}

// Borrowed reports whether any handler currently holds an outstanding
// borrow of this TimedReader (see Borrow).
func (t *TimedReader) Borrowed() bool { return t.borrows.Load() > 0 }

// Borrow registers an outstanding reference and returns a function the
// caller must invoke exactly once to release it. The sweeper will not
// reset a TimedReader with an outstanding borrow.
func (t *TimedReader) Borrow() func() {
	t.borrows.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() { t.borrows.Add(-1) })
	}
}

// Get returns the underlying Reader, constructing it on first use by
// attempting each of the Manager's configured search paths in order.
// Concurrent callers for the same TimedReader serialize on its mutex and
// share the one Reader that wins.
func (t *TimedReader) Get(ctx context.Context) (reader.Reader, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.reader != nil {
		return t.reader, nil
	}

	r, err := t.manager.open(ctx, t.name)
	if err != nil {
		return nil, err
	}

	t.reader = r
	t.manager.cache.Reserve(t.name, r.ByteSize())
	return r, nil
}

// Reset drops the constructed Reader, releasing its share of the cache
// budget. Callers must ensure no borrow is outstanding first.
func (t *TimedReader) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.reader != nil {
		_ = t.reader.Close()
		t.reader = nil
	}
	t.manager.cache.Release(t.name)
}
