// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xslices

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAtAndLast(t *testing.T) {
	s := []int{10, 20, 30}
	assert.Equal(t, 10, At(s, 0))
	assert.Equal(t, 30, At(s, -1))
	assert.Equal(t, 20, At(s, -2))
	assert.Equal(t, 30, Last(s))
}

func TestCopy(t *testing.T) {
	s := []string{"a", "b"}
	c := Copy(s)
	c[0] = "z"
	assert.Equal(t, "a", s[0])
	assert.Nil(t, Copy([]int(nil)))
}

func TestSortedKeys(t *testing.T) {
	m := map[string]struct{}{"b": {}, "a": {}, "c": {}}
	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(m))
	assert.ElementsMatch(t, []string{"a", "b", "c"}, Keys(m))
}
