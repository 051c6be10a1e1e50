// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// chains_checkpoints inspects checkpoint directories written by the
// checkpoints package, without needing the model code that produced them.
//
// Usage:
//
//	chains_checkpoints -summary <checkpoint_dir>
//	chains_checkpoints -entries [-scope l1] <checkpoint_dir>
package main

import (
	"flag"
	"os"

	"k8s.io/klog/v2"
)

var (
	flagSummary = flag.Bool("summary", false,
		"Displays a summary of the checkpoint directory: files, entry counts, parameter sizes.")
	flagEntries = flag.Bool("entries", false,
		"Lists the entries of the latest checkpoint, with shapes, sizes and simple statistics.")
	flagScope = flag.String("scope", "",
		"Restricts -entries to the paths under the given \"/\"-separated prefix.")
	flagAll = flag.Bool("all", false,
		"With -summary, reports every checkpoint file instead of only the latest.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 {
		klog.Errorf("Expected exactly one checkpoint directory to read from. See 'chains_checkpoints -help'.")
		os.Exit(1)
	}
	dir := args[0]

	if !*flagSummary && !*flagEntries {
		*flagSummary = true
	}
	if *flagSummary {
		Summary(dir)
	}
	if *flagEntries {
		ListEntries(dir, *flagScope)
	}
}
