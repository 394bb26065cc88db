package catalog

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// Pattern is a compiled catalog file glob. "**" crosses directories.
type Pattern struct {
	raw     string
	base    string
	matcher glob.Glob
}

func CompilePattern(pattern string) (*Pattern, error) {
	clean := filepath.ToSlash(filepath.Clean(pattern))

	matcher, err := glob.Compile(clean, '/')
	if err != nil {
		return nil, fmt.Errorf("compiling pattern %q: %w", pattern, err)
	}

	return &Pattern{
		raw:     clean,
		base:    baseDir(clean),
		matcher: matcher,
	}, nil
}

func (p *Pattern) String() string {
	return p.raw
}

// Match reports whether path is selected by the pattern.
func (p *Pattern) Match(path string) bool {
	return p.matcher.Match(filepath.ToSlash(filepath.Clean(path)))
}

// Base is the deepest directory of the pattern without wildcards.
func (p *Pattern) Base() string {
	return filepath.FromSlash(p.base)
}

// Files lists matching files in lexical order.
func (p *Pattern) Files() ([]string, error) {
	var files []string

	err := filepath.WalkDir(p.Base(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && p.Match(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", p.Base(), err)
	}

	sort.Strings(files)
	return files, nil
}

// Dirs lists the directories a watcher must observe: the base and every
// directory below it.
func (p *Pattern) Dirs() ([]string, error) {
	return subdirs(p.Base())
}

func subdirs(root string) ([]string, error) {
	var dirs []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	return dirs, nil
}

func baseDir(pattern string) string {
	dir := pattern
	if i := strings.IndexAny(dir, "*?[{"); i >= 0 {
		dir = dir[:i]
	} else {
		return filepath.ToSlash(filepath.Dir(filepath.FromSlash(dir)))
	}

	i := strings.LastIndex(dir, "/")
	switch {
	case i < 0:
		return "."
	case i == 0:
		return "/"
	default:
		return dir[:i]
	}
}

// LoadFile reads the definitions of one catalog file.
func LoadFile(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	defs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	for i := range defs {
		defs[i].Source = path
	}

	return defs, nil
}

// Load reads every file matched by p. A template id declared in two files is
// an error.
func (p *Pattern) Load() ([]Definition, error) {
	files, err := p.Files()
	if err != nil {
		return nil, err
	}

	var all []Definition
	sources := make(map[string]string)
	for _, path := range files {
		defs, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		for _, def := range defs {
			if prev, ok := sources[def.ID]; ok {
				return nil, fmt.Errorf("%w: id %q declared in %s and %s", ErrInvalidDefinition, def.ID, prev, path)
			}
			sources[def.ID] = path
		}
		all = append(all, defs...)
	}

	return all, nil
}
