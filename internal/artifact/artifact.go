// Package artifact allocates and writes task output files inside a
// fixed output directory.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/openrelik/chopchopgo-worker/internal/model"
)

// Dir allocates output artifacts under a single directory. The directory
// is held open as an os.Root so artifacts cannot escape it.
type Dir struct {
	root *os.Root
}

func OpenDir(path string) (*Dir, error) {
	root, err := os.OpenRoot(path)
	if err != nil {
		return nil, fmt.Errorf("opening output dir: %w", err)
	}
	return &Dir{root: root}, nil
}

// Create allocates a new empty artifact. The on-disk name is a fresh
// uuid so concurrent workflows never collide, displayName is what the
// operator sees. The file is written once later via Write and never
// mutated afterward.
func (d *Dir) Create(displayName, extension, dataType string) (model.OutputFile, error) {
	if d.root == nil {
		return model.OutputFile{}, errors.New("output dir already closed")
	}

	name := uuid.New().String()
	if extension != "" {
		name += "." + extension
		displayName += "." + extension
	}

	f, err := d.root.Create(name)
	if err != nil {
		return model.OutputFile{}, fmt.Errorf("creating artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		return model.OutputFile{}, fmt.Errorf("closing artifact: %w", err)
	}

	return model.OutputFile{
		Path:        filepath.Join(d.root.Name(), name),
		DisplayName: displayName,
		Extension:   extension,
		DataType:    dataType,
	}, nil
}

// Write stores the payload of a previously created artifact verbatim.
func (d *Dir) Write(out model.OutputFile, data []byte) error {
	if d.root == nil {
		return errors.New("output dir already closed")
	}

	f, err := d.root.Create(filepath.Base(out.Path))
	if err != nil {
		return fmt.Errorf("writing artifact: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing artifact: %w", err)
	}
	return nil
}

func (d *Dir) Close() error {
	if d.root == nil {
		return errors.New("output dir already closed")
	}
	err := d.root.Close()
	d.root = nil
	return err
}
