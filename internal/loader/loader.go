// Package loader is the external sheet-loader internal/sema.SourceProvider
// names but does not itself implement: a filesystem-backed reader that
// resolves every relative Include path against the directory of the main
// sheet, and a thin Load entry point that wires internal/sema.Scan to it
// for a single top-level compile.
package loader

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/decisionlang/decision/internal/diag"
	"github.com/decisionlang/decision/internal/ir"
	"github.com/decisionlang/decision/internal/sema"
)

// FS resolves Include paths against files on disk, rooted at Dir. A path
// already absolute is read as-is; everything else is joined to Dir. Since
// sema.Scan passes the same SourceProvider down the whole include graph
// rather than one per sheet, every relative Include, at any depth, is
// resolved against Dir; a sheet included from a subdirectory does not
// resolve its own Includes against that subdirectory.
type FS struct {
	Dir string
}

// NewFS returns an FS rooted at the directory containing mainPath.
func NewFS(mainPath string) *FS {
	return &FS{Dir: filepath.Dir(mainPath)}
}

// ReadSheet implements sema.SourceProvider.
func (f *FS) ReadSheet(path string) (string, error) {
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(f.Dir, path)
	}
	b, err := os.ReadFile(full)
	if err != nil {
		return "", errors.Wrapf(err, "loader: reading sheet %q", path)
	}
	return string(b), nil
}

// Load resolves mainPath to its base name relative to an FS rooted at its
// own directory, then scans it (and everything it transitively includes)
// with internal/sema. The circular-include guard lives in sema.Scan itself
// (the priors chain passed through scanProperties); Load's only job is
// supplying the filesystem-backed SourceProvider sema.Scan was written
// against.
func Load(mainPath string, debugIncluded bool) (*ir.Sheet, *diag.Sink) {
	fs := NewFS(mainPath)
	return sema.Scan(fs, filepath.Base(mainPath), nil, debugIncluded)
}
