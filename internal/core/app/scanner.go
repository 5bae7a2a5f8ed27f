package app

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/gobwas/glob"
)

func compileGlobs(patterns []string, label string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s pattern %q: %w", label, p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

func matchAny(globs []glob.Glob, name string) bool {
	for _, g := range globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// ScanNetworks walks roots and returns the network files matching include
// and none of the excludes, sorted and deduplicated. A root naming a file is
// returned as is.
func ScanNetworks(roots, include, excludeDirs, excludeFiles []string) ([]string, error) {
	includeGlobs, err := compileGlobs(include, "include")
	if err != nil {
		return nil, err
	}
	dirGlobs, err := compileGlobs(excludeDirs, "exclude dir")
	if err != nil {
		return nil, err
	}
	fileGlobs, err := compileGlobs(excludeFiles, "exclude file")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			abs, err := filepath.Abs(root)
			if err != nil {
				return nil, err
			}
			seen[abs] = true
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			base := filepath.Base(path)
			if d.IsDir() {
				if path != root && matchAny(dirGlobs, base) {
					return filepath.SkipDir
				}
				return nil
			}
			if !matchAny(includeGlobs, base) || matchAny(fileGlobs, base) {
				return nil
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				return err
			}
			seen[abs] = true
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	files := make([]string, 0, len(seen))
	for path := range seen {
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}
