// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package checkpoints saves and loads a tree of links to disk, with numbered
// checkpoint files and rotation.
//
// Configuration uses a builder starting with Build:
//
//	handler, err := checkpoints.Build(model).Dir("/tmp/my_model").Keep(3).Done()
//	...
//	err = handler.Save()
//
// Done loads the latest checkpoint into the tree when the directory already
// holds one, so resuming is the default. Files are written under a unique
// temporary name and renamed into place, so a crash mid-save never corrupts
// an existing checkpoint.
//
// The file format is JSON (see serializers.Store), one file per checkpoint,
// named "checkpoint-NNNNNNNN.json".
package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/chains/links"
	"github.com/gomlx/chains/serializers"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// DirPermMode is used when creating the checkpoint directory.
	DirPermMode = os.FileMode(0770)

	// FilePermMode is used when creating checkpoint files.
	FilePermMode = os.FileMode(0660)
)

var checkpointNameRe = regexp.MustCompile(`^checkpoint-(\d{8})\.json$`)

// Config for a checkpoint Handler, built with Build and finished with Done.
type Config struct {
	root links.Node
	dir  string
	keep int
	err  error
}

// Build starts the configuration of a checkpoint handler for the given tree.
func Build(root links.Node) *Config {
	c := &Config{root: root, keep: -1}
	if root == nil {
		c.err = errors.Errorf("checkpoints.Build: nil root link")
	}
	return c
}

// Dir sets the directory where checkpoints are kept. It is created if
// needed. Required.
func (c *Config) Dir(dir string) *Config {
	c.dir = dir
	return c
}

// Keep sets how many checkpoint files to keep: older ones are removed after
// each save. The default (or n <= 0) keeps all.
func (c *Config) Keep(n int) *Config {
	c.keep = n
	return c
}

// Done finishes the configuration and returns the Handler. If the directory
// already holds checkpoints, the latest one is loaded into the tree.
func (c *Config) Done() (*Handler, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.dir == "" {
		return nil, errors.Errorf("checkpoints: configuration is missing Dir()")
	}
	if err := os.MkdirAll(c.dir, DirPermMode); err != nil {
		return nil, errors.Wrapf(err, "creating checkpoint directory %q", c.dir)
	}
	h := &Handler{root: c.root, dir: c.dir, keep: c.keep}
	names, err := h.listCheckpoints()
	if err != nil {
		return nil, err
	}
	if len(names) > 0 {
		last := names[len(names)-1]
		if err := h.loadFile(last); err != nil {
			return nil, err
		}
		step, _ := strconv.Atoi(checkpointNameRe.FindStringSubmatch(last)[1])
		h.nextStep = step + 1
	}
	return h, nil
}

// Handler saves and loads checkpoints for one tree of links. Create it with
// Build(...).Done().
type Handler struct {
	root     links.Node
	dir      string
	keep     int
	nextStep int
}

// Dir returns the checkpoint directory.
func (h *Handler) Dir() string { return h.dir }

// Save writes a new numbered checkpoint and rotates old ones per Keep.
func (h *Handler) Save() error {
	store := serializers.NewStore()
	if err := links.Serialize(h.root, serializers.NewRecorder(store)); err != nil {
		return errors.WithMessage(err, "recording tree state")
	}
	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding checkpoint")
	}
	tmpPath := filepath.Join(h.dir, "tmp-"+uuid.NewString())
	if err := os.WriteFile(tmpPath, data, FilePermMode); err != nil {
		return errors.Wrapf(err, "writing checkpoint to %q", tmpPath)
	}
	finalPath := filepath.Join(h.dir, fmt.Sprintf("checkpoint-%08d.json", h.nextStep))
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return errors.Wrapf(err, "renaming checkpoint into %q", finalPath)
	}
	h.nextStep++
	klog.V(1).Infof("checkpoints: saved %s (%s)", finalPath, humanize.Bytes(uint64(len(data))))
	return h.removeOldCheckpoints()
}

// Load loads the latest checkpoint into the tree. It fails if the directory
// holds none.
func (h *Handler) Load() error {
	names, err := h.listCheckpoints()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return errors.Errorf("checkpoints: no checkpoint found in %q", h.dir)
	}
	return h.loadFile(names[len(names)-1])
}

// HasCheckpoints returns whether the directory holds at least one checkpoint.
func (h *Handler) HasCheckpoints() (bool, error) {
	names, err := h.listCheckpoints()
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}

func (h *Handler) loadFile(name string) error {
	path := filepath.Join(h.dir, name)
	store, err := LoadStore(path)
	if err != nil {
		return err
	}
	if err := links.Serialize(h.root, serializers.NewRestorer(store)); err != nil {
		return errors.WithMessagef(err, "restoring tree state from %q", path)
	}
	klog.V(1).Infof("checkpoints: loaded %s", path)
	return nil
}

// List returns the checkpoint file names in a directory, sorted from oldest
// to newest.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "listing checkpoint directory %q", dir)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !checkpointNameRe.MatchString(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// LoadStore reads a checkpoint file into a flat store, without needing a
// tree of links. This is what inspection tools use.
func LoadStore(path string) (*serializers.Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading checkpoint %q", path)
	}
	store := serializers.NewStore()
	if err := json.Unmarshal(data, store); err != nil {
		return nil, errors.WithMessagef(err, "checkpoint %q", path)
	}
	return store, nil
}

func (h *Handler) listCheckpoints() ([]string, error) {
	return List(h.dir)
}

func (h *Handler) removeOldCheckpoints() error {
	if h.keep <= 0 {
		return nil
	}
	names, err := h.listCheckpoints()
	if err != nil {
		return err
	}
	for len(names) > h.keep {
		path := filepath.Join(h.dir, names[0])
		if err := os.Remove(path); err != nil {
			return errors.Wrapf(err, "removing old checkpoint %q", path)
		}
		klog.V(1).Infof("checkpoints: removed old checkpoint %s", path)
		names = names[1:]
	}
	return nil
}
