// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/chains/checkpoints"
	"github.com/gomlx/chains/serializers"
	"github.com/gomlx/chains/tensors"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

// Summary prints an overview of the checkpoint directory: the files it holds
// and the sizes of the latest checkpoint's contents.
func Summary(dir string) {
	names := must.M1(checkpoints.List(dir))
	if len(names) == 0 {
		klog.Errorf("No checkpoints found in %q.", dir)
		os.Exit(1)
	}

	table := newPlainTable(false, lipgloss.Right, lipgloss.Left)
	table.Row("checkpoint dir", dir)
	table.Row("checkpoints", fmt.Sprintf("%d", len(names)))

	report := names[len(names)-1:]
	if *flagAll {
		report = names
	}
	for _, name := range report {
		path := filepath.Join(dir, name)
		store := must.M1(checkpoints.LoadStore(path))
		fi := must.M1(os.Stat(path))
		numTensors, numParams, numBytes := storeTotals(store)
		table.Row(name, fmt.Sprintf("%s on disk, %d entries, %d tensors, %s parameters (%s)",
			humanize.Bytes(uint64(fi.Size())), store.Len(), numTensors,
			humanize.Comma(int64(numParams)), humanize.Bytes(numBytes)))
	}

	fmt.Println(titleStyle.Render("Checkpoint Summary"))
	fmt.Println(table.Render())
}

// storeTotals sums tensor entries of a checkpoint: count, number of values
// and bytes.
func storeTotals(store *serializers.Store) (numTensors, numParams int, numBytes uint64) {
	for _, value := range store.Entries() {
		t, ok := value.(*tensors.Tensor)
		if !ok {
			continue
		}
		numTensors++
		numParams += t.Shape().Size()
		numBytes += uint64(t.Shape().Memory())
	}
	return
}
