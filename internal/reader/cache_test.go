// Copyright (c) 2025 Hobu, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package reader

import "testing"

func TestCacheBudget_ReserveAndUsed(t *testing.T) {
	c := NewCacheBudget(1000)

	total := c.Reserve("a", 300)
	if total != 300 {
		t.Errorf("expected total 300, got %d", total)
	}

	total = c.Reserve("b", 400)
	if total != 700 {
		t.Errorf("expected total 700, got %d", total)
	}

	if c.Used() != 700 {
		t.Errorf("expected Used() 700, got %d", c.Used())
	}
	if c.Max() != 1000 {
		t.Errorf("expected Max() 1000, got %d", c.Max())
	}
}

func TestCacheBudget_ReserveReplacesPriorEntry(t *testing.T) {
	c := NewCacheBudget(1000)
	c.Reserve("a", 300)
	total := c.Reserve("a", 100)
	if total != 100 {
		t.Errorf("expected re-reservation to replace, got total %d", total)
	}
}

func TestCacheBudget_Release(t *testing.T) {
	c := NewCacheBudget(1000)
	c.Reserve("a", 300)
	c.Reserve("b", 200)
	c.Release("a")
	if c.Used() != 200 {
		t.Errorf("expected 200 after release, got %d", c.Used())
	}
}

func TestCacheBudget_ZeroCeilingIsUnbounded(t *testing.T) {
	c := NewCacheBudget(0)
	if c.Max() != 0 {
		t.Errorf("expected Max() 0, got %d", c.Max())
	}
	// Reserve never fails regardless of ceiling.
	total := c.Reserve("a", 1<<40)
	if total != 1<<40 {
		t.Errorf("expected reservation to succeed, got %d", total)
	}
}
