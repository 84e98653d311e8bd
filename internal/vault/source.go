// Package vault orchestrates analysis of a note collection into the graph.
package vault

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"notegraph/pkg/errors"
)

// Source provides note content and already-resolved note-to-note links.
// Link extraction from markup stays on this side of the boundary; the merge
// engine only ever sees resolved target paths.
type Source interface {
	List(ctx context.Context) ([]string, error)
	Read(ctx context.Context, path string) (string, error)
	Links(ctx context.Context, path, content string) []string
}

var wikiLinkPattern = regexp.MustCompile(`\[\[([^\[\]]+)\]\]`)

// FSSource reads markdown notes from a directory tree
type FSSource struct {
	root string
}

// NewFSSource creates a filesystem note source rooted at dir
func NewFSSource(dir string) *FSSource {
	return &FSSource{root: dir}
}

// List returns the vault-relative paths of all markdown notes, sorted
func (s *FSSource) List(ctx context.Context) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != s.root {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.NewBaseError(errors.ErrorTypeVault, "failed to list vault", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Read returns the content of one note
func (s *FSSource) Read(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(path)))
	if err != nil {
		return "", errors.NewNoteNotFound(path, err)
	}
	return string(data), nil
}

// Links resolves [[wiki-link]] targets in the content against the notes
// that actually exist in the vault, returning their paths. Aliases
// ([[target|shown]]) and heading anchors ([[target#section]]) are stripped
// before resolution; unresolvable links are dropped.
func (s *FSSource) Links(ctx context.Context, path, content string) []string {
	all, err := s.List(ctx)
	if err != nil {
		return nil
	}

	// Index notes by lowercase base name without extension.
	byName := make(map[string]string, len(all))
	for _, p := range all {
		base := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		byName[strings.ToLower(base)] = p
	}

	seen := make(map[string]struct{})
	var targets []string
	for _, match := range wikiLinkPattern.FindAllStringSubmatch(content, -1) {
		name := match[1]
		if idx := strings.IndexAny(name, "|#"); idx >= 0 {
			name = name[:idx]
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		target, ok := byName[name]
		if !ok || target == path {
			continue
		}
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}
		targets = append(targets, target)
	}
	return targets
}
