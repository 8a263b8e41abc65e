package manifest

import (
	"encoding/json"
	"fmt"
	"io"
	fp "path/filepath"

	"github.com/pyropy/chainstore/core/model"
	"github.com/spf13/afero"
)

// Encode writes m as a JSON array ordered by sequence.
func Encode(w io.Writer, m model.Manifest) error {
	sorted := m.Sorted()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sorted)
}

func Decode(r io.Reader) (model.Manifest, error) {
	var m model.Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: decoding manifest: %w", model.ErrManifestCorrupt, err)
	}

	// an empty file is "[]"; null is not a manifest
	if m == nil {
		return nil, fmt.Errorf("%w: manifest is not a JSON array", model.ErrManifestCorrupt)
	}

	return m, nil
}

// Write saves the manifest document at path, creating parent directories.
func Write(fs afero.Fs, path string, m model.Manifest) error {
	if dir := fp.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("%w: creating %s: %w", model.ErrIO, dir, err)
		}
	}

	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("%w: creating manifest %s: %w", model.ErrIO, path, err)
	}

	if err := Encode(f, m); err != nil {
		f.Close()
		return fmt.Errorf("%w: writing manifest %s: %w", model.ErrIO, path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: closing manifest %s: %w", model.ErrIO, path, err)
	}

	return nil
}

func Read(fs afero.Fs, path string) (model.Manifest, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening manifest %s: %w", model.ErrIO, path, err)
	}
	defer f.Close()

	return Decode(f)
}
