// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/chains/checkpoints"
	"github.com/gomlx/chains/links"
	"github.com/gomlx/chains/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

// ListEntries prints one row per entry of the latest checkpoint, optionally
// restricted to the paths under scope.
func ListEntries(dir, scope string) {
	names := must.M1(checkpoints.List(dir))
	if len(names) == 0 {
		klog.Errorf("No checkpoints found in %q.", dir)
		os.Exit(1)
	}
	latest := names[len(names)-1]
	store := must.M1(checkpoints.LoadStore(filepath.Join(dir, latest)))

	if scope != "" && !strings.HasSuffix(scope, links.ScopeSeparator) {
		scope += links.ScopeSeparator
	}

	table := newPlainTable(true, lipgloss.Left, lipgloss.Left, lipgloss.Right, lipgloss.Right, lipgloss.Left)
	table.Row("Path", "Shape", "Size", "Bytes", "Values")
	rows := 0
	for path, value := range store.Entries() {
		if scope != "" && !strings.HasPrefix(path, scope) {
			continue
		}
		rows++
		t, ok := value.(*tensors.Tensor)
		if !ok {
			table.Row(path, "", "", "", fmt.Sprintf("%v", value))
			continue
		}
		table.Row(path, t.Shape().String(),
			humanize.Comma(int64(t.Shape().Size())),
			humanize.Bytes(uint64(t.Shape().Memory())),
			tensorStats(t))
	}
	if rows == 0 {
		klog.Errorf("No entries under scope %q in %s.", scope, latest)
		os.Exit(1)
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("Entries of %s", latest)))
	fmt.Println(table.Render())
}

// tensorStats renders a scalar's value, or min/max/mean for float tensors.
// Other dtypes are left blank.
func tensorStats(t *tensors.Tensor) string {
	var flat []float64
	switch t.DType() {
	case dtypes.Float32:
		for _, v := range tensors.CopyFlatData[float32](t) {
			flat = append(flat, float64(v))
		}
	case dtypes.Float64:
		flat = tensors.CopyFlatData[float64](t)
	default:
		return ""
	}
	if t.Shape().IsScalar() {
		return fmt.Sprintf("%.5g", flat[0])
	}
	minV, maxV, sum := math.Inf(1), math.Inf(-1), 0.0
	for _, v := range flat {
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
		sum += v
	}
	return fmt.Sprintf("min=%.5g, max=%.5g, mean=%.5g", minV, maxV, sum/float64(len(flat)))
}
