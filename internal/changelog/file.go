// SPDX-License-Identifier: MPL-2.0

package changelog

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/charmbracelet/glamour"
)

// FileName is the changelog file maintained in every package directory.
const FileName = "CHANGELOG.md"

// Document updates the changelog file of one package.
type Document struct {
	// Dir is the package directory holding FileName.
	Dir string
	// Full rebuilds the file instead of prepending to it.
	Full bool
	// DryRun previews the result on Preview instead of writing it.
	DryRun bool
	// Preview receives the rendered document in dry-run mode.
	Preview io.Writer
}

// Path returns the changelog file path.
func (d Document) Path() string {
	return filepath.Join(d.Dir, FileName)
}

// Update splices windows into the changelog and writes it. The resulting
// Markdown is returned in both modes.
func (d Document) Update(windows []Window, l Links) (string, error) {
	existing := ""
	if !d.Full {
		data, err := os.ReadFile(d.Path())
		switch {
		case err == nil:
			existing = string(data)
		case errors.Is(err, fs.ErrNotExist):
		default:
			return "", fmt.Errorf("failed to read %s: %w", d.Path(), err)
		}
	}

	content := Splice(existing, windows, l, d.Full)

	if d.DryRun {
		if d.Preview != nil {
			fmt.Fprint(d.Preview, preview(content))
		}
		return content, nil
	}
	if err := os.WriteFile(d.Path(), []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", d.Path(), err)
	}
	return content, nil
}

// preview renders Markdown for the terminal, falling back to the raw text.
func preview(md string) string {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}
