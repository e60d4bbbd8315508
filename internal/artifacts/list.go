package artifacts

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Artifact is a compiled extension module found under a root.
type Artifact struct {
	RelPath   string
	SizeBytes int64
}

// Extensions of files reported by List. Staged sources and C
// intermediates are cleanable but not listed as build products.
var listExtensions = []string{".so", ".pyd"}

// List enumerates compiled extension modules under root, sorted by
// relative path. A missing root is an error; unreadable subtrees are
// silently skipped.
func List(ctx context.Context, root string) ([]Artifact, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("list root %s: %w", root, err)
	}

	var found []Artifact
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			return nil
		}
		if info.IsDir() || !isListedFile(p) {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return relErr
		}
		found = append(found, Artifact{
			RelPath:   filepath.ToSlash(rel),
			SizeBytes: info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(found, func(i, j int) bool { return found[i].RelPath < found[j].RelPath })
	return found, nil
}

func isListedFile(p string) bool {
	ext := path.Ext(filepath.ToSlash(p))
	for _, e := range listExtensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}
