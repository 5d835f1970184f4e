package memdb

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/roach88/docsql/internal/mongosrc"
)

// dataExtensions are the file extensions LoadFS reads.
var dataExtensions = []string{".json", ".jsonl", ".ndjson"}

// LoadDir loads every data file in dir; see LoadFS.
func LoadDir(dir string, opts ...Option) (*DB, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("load %s: not a directory", dir)
	}
	return LoadFS(os.DirFS(dir), opts...)
}

// LoadFS builds a database from the top-level data files of fsys. Each
// file holds one collection, named after the file without its extension,
// as Extended JSON: an array of documents or one document per line.
func LoadFS(fsys fs.FS, opts ...Option) (*DB, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read data directory: %w", err)
	}
	db := New(opts...)
	for _, e := range entries {
		ext := path.Ext(e.Name())
		if e.IsDir() || !isDataFile(ext) {
			continue
		}
		data, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		docs, err := mongosrc.ParseExtJSON(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", e.Name(), err)
		}
		name := strings.TrimSuffix(e.Name(), ext)
		db.Collection(name)
		db.Insert(name, docs...)
	}
	return db, nil
}

func isDataFile(ext string) bool {
	for _, x := range dataExtensions {
		if strings.EqualFold(ext, x) {
			return true
		}
	}
	return false
}
