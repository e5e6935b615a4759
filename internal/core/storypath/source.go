// Package storypath enumerates the rendered story paths for a revision. The
// build pipeline (outside this service) flattens the narrative graph into one
// text file per traversal; this package only reads what it produced.
package storypath

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fableworks/continuity/internal/core/identity"
	"github.com/fableworks/continuity/internal/core/model"
)

// Source enumerates all story paths for a target revision.
type Source interface {
	Enumerate(ctx context.Context, revision string) ([]model.StoryPath, error)
}

// DirSource reads rendered paths from <Root>/<revision>/*.txt. File order is
// lexical so enumeration order is stable across runs; identity still comes
// from content, never from the file name.
type DirSource struct {
	Root string
}

func NewDirSource(root string) *DirSource {
	return &DirSource{Root: root}
}

func (s *DirSource) Enumerate(ctx context.Context, revision string) ([]model.StoryPath, error) {
	dir := filepath.Join(s.Root, filepath.Base(revision))
	names, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read rendered paths for revision '%s': %w", revision, err)
	}

	var files []string
	for _, d := range names {
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".txt") {
			continue
		}
		files = append(files, d.Name())
	}
	sort.Strings(files)

	paths := make([]model.StoryPath, 0, len(files))
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read path file '%s': %w", name, err)
		}
		content := string(data)
		paths = append(paths, model.StoryPath{
			ID:      identity.PathIDFromContent(content),
			Name:    strings.TrimSuffix(name, ".txt"),
			Content: content,
		})
	}
	return paths, nil
}
