package catalogue

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Load reads the catalogue at path. A missing file is an empty catalogue.
func Load(path string) ([]*Feature, Meta, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, Meta{}, nil
	}
	if err != nil {
		return nil, Meta{}, fmt.Errorf("reading catalogue: %w", err)
	}

	features, meta, err := Decode(data)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("%s: %w", path, err)
	}
	return features, meta, nil
}

// Save replaces the catalogue at path with features. Changes made to the
// file since it was loaded are lost.
func Save(path string, features []*Feature, meta Meta) error {
	data, err := Encode(features, meta)
	if err != nil {
		return err
	}
	return writeFile(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// WriteSummary writes one Summary line per feature.
func WriteSummary(w io.Writer, features []*Feature) error {
	bw := bufio.NewWriter(w)
	for _, f := range features {
		if _, err := fmt.Fprintln(bw, f.Summary()); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// SaveSummary replaces the summary file at path.
func SaveSummary(path string, features []*Feature) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteSummary(w, features)
	})
}

// writeFile writes through a temporary sibling and renames it over path, so
// readers never see a half-written file.
func writeFile(path string, write func(io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err = tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("setting mode of %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
