// Package relconfig loads the relation-flags schema (which relations are
// Acyclic, Exclusive, Union, Tag-only, DontInherit, or Final; which
// relations are constrained by oneof) from a YAML file and bootstraps
// internal/relcore.Index with it, watching the file for edits the way the
// teacher's cmd/bd list --watch loop watches its data directory.
package relconfig

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/relgraph/relgraph/internal/relcore"
)

// RelationSpec is one entry of the YAML schema file.
type RelationSpec struct {
	Name        string   `yaml:"name"`
	ID          uint32   `yaml:"id"`
	Flags       []string `yaml:"flags"`
	OneOf       string   `yaml:"oneof"` // name resolved to entity K; targets of this relation must carry (ChildOf, K); Apply does not read OneOfTarget
	OneOfTarget uint32   `yaml:"oneof-target"`
}

// Schema is the parsed relation-flags document.
type Schema struct {
	Relations []RelationSpec `yaml:"relations"`
}

// LoadSchema reads and parses a relation-flags YAML file. A missing file
// returns an empty schema rather than an error, matching the teacher's
// LoadLocalConfig "absent config is just defaults" convention.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is operator-supplied config, not user input
	if err != nil {
		if os.IsNotExist(err) {
			return &Schema{}, nil
		}
		return nil, fmt.Errorf("relconfig: read %s: %w", path, err)
	}
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("relconfig: parse %s: %w", path, err)
	}
	return &s, nil
}

var flagBits = map[string]relcore.Flags{
	"tag":          relcore.FlagTag,
	"dont-inherit": relcore.FlagDontInherit,
	"exclusive":    relcore.FlagExclusive,
	"acyclic":      relcore.FlagAcyclic,
	"union":        relcore.FlagUnion,
	"final":        relcore.FlagFinal,
}

// Apply ensures every relation named in the schema and sets its flags and
// oneof constraint on index. Names must already be resolvable to entities
// by the caller via resolve; relconfig itself carries no entity registry.
func Apply(index *relcore.Index, s *Schema, resolve func(name string) relcore.Entity) error {
	for _, rel := range s.Relations {
		e := resolve(rel.Name)
		if e == 0 {
			return fmt.Errorf("relconfig: relation %q did not resolve to an entity", rel.Name)
		}
		if _, err := index.Ensure(relcore.MakePair(e, relcore.Wildcard)); err != nil {
			return fmt.Errorf("relconfig: ensure (%s,*): %w", rel.Name, err)
		}
		var flags relcore.Flags
		for _, f := range rel.Flags {
			bit, ok := flagBits[f]
			if !ok {
				return fmt.Errorf("relconfig: relation %q: unknown flag %q", rel.Name, f)
			}
			flags |= bit
		}
		index.SetFlags(relcore.MakePair(e, relcore.Wildcard), flags)

		if rel.OneOf != "" {
			k := resolve(rel.OneOf)
			if k == 0 {
				return fmt.Errorf("relconfig: relation %q: oneof target %q did not resolve", rel.Name, rel.OneOf)
			}
			index.SetOneOf(e, k)
		}
	}
	return nil
}

// Watcher reloads a schema file on write and re-applies it, matching the
// teacher's list --watch fsnotify loop (cmd/bd, now adapted here since the
// CLI itself is out of scope).
type Watcher struct {
	path    string
	index   *relcore.Index
	resolve func(name string) relcore.Entity
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	onError func(error)
}

// NewWatcher starts watching path for writes, applying the schema once
// immediately and again on every subsequent modification.
func NewWatcher(path string, index *relcore.Index, resolve func(name string) relcore.Entity, onError func(error)) (*Watcher, error) {
	s, err := LoadSchema(path)
	if err != nil {
		return nil, err
	}
	if err := Apply(index, s, resolve); err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("relconfig: create watcher: %w", err)
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("relconfig: watch %s: %w", path, err)
		}
	}

	w := &Watcher{path: path, index: index, resolve: resolve, watcher: fw, onError: onError}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.reportError(fmt.Errorf("relconfig: watch error: %w", err))
		}
	}
}

func (w *Watcher) reload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, err := LoadSchema(w.path)
	if err != nil {
		w.reportError(err)
		return
	}
	if err := Apply(w.index, s, w.resolve); err != nil {
		w.reportError(err)
	}
}

func (w *Watcher) reportError(err error) {
	if w.onError != nil {
		w.onError(err)
	}
}

// Close stops the watch loop.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
