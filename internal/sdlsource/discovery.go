// Package sdlsource finds the SDL files making up a schema.
package sdlsource

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	language "github.com/hanpama/gqlbind/internal/language"
)

// Discovery lists schema files and reads their content.
type Discovery interface {
	List(ctx context.Context) ([]string, error)
	Read(ctx context.Context, name string) (string, error)
}

// Extensions are the file extensions treated as SDL.
var Extensions = []string{".graphql", ".graphqls", ".gql"}

// FileSystem discovers SDL files from paths on disk. A directory
// contributes every SDL file below it; a file is taken as is.
type FileSystem struct {
	files []string
}

func NewFileSystem(paths ...string) (*FileSystem, error) {
	d := &FileSystem{}
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			d.files = append(d.files, p)
		}
	}
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("reading schema: %w", err)
		}
		if !info.IsDir() {
			add(root)
			continue
		}
		err = filepath.WalkDir(root, func(path string, e fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !e.IsDir() && slices.Contains(Extensions, filepath.Ext(e.Name())) {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", root, err)
		}
	}
	return d, nil
}

func (d *FileSystem) List(context.Context) ([]string, error) {
	return slices.Clone(d.files), nil
}

func (d *FileSystem) Read(_ context.Context, name string) (string, error) {
	b, err := os.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("reading schema: %w", err)
	}
	return string(b), nil
}

// InMemory serves SDL held in a map of file name to content.
type InMemory map[string]string

func (m InMemory) List(context.Context) ([]string, error) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (m InMemory) Read(_ context.Context, name string) (string, error) {
	content, ok := m[name]
	if !ok {
		return "", fmt.Errorf("schema file %q not found", name)
	}
	return content, nil
}

// Load reads every file of d. The file names end up in error positions.
func Load(ctx context.Context, d Discovery) ([]*language.Source, error) {
	names, err := d.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no schema files found")
	}
	sources := make([]*language.Source, 0, len(names))
	for _, name := range names {
		content, err := d.Read(ctx, name)
		if err != nil {
			return nil, err
		}
		sources = append(sources, &language.Source{Name: name, Input: content})
	}
	return sources, nil
}
