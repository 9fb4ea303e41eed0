// SPDX-License-Identifier: MPL-2.0

package workspace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ManifestFile is the package manifest file name.
const ManifestFile = "package.json"

// ErrManifestNotFound is returned when a directory has no package.json.
var ErrManifestNotFound = errors.New("package.json not found")

type (
	// Manifest is the subset of package.json a release reads.
	Manifest struct {
		Name             string            `json:"name"`
		Version          string            `json:"version"`
		Private          bool              `json:"private"`
		License          string            `json:"license"`
		Main             string            `json:"main"`
		Module           string            `json:"module"`
		Types            string            `json:"types"`
		Exports          json.RawMessage   `json:"exports"`
		Files            []string          `json:"files"`
		Scripts          map[string]string `json:"scripts"`
		PublishConfig    PublishConfig     `json:"publishConfig"`
		Repository       Repository        `json:"repository"`
		PackageManager   string            `json:"packageManager"`
		Dependencies     map[string]string `json:"dependencies"`
		PeerDependencies map[string]string `json:"peerDependencies"`
		Workspaces       Patterns          `json:"workspaces"`
		// Release holds the optional "rc" section.
		Release ReleaseSettings `json:"rc"`
	}

	// PublishConfig is the "publishConfig" section.
	PublishConfig struct {
		Registry string `json:"registry"`
		Access   string `json:"access"`
	}

	// Repository is the "repository" field, which may be a plain URL string
	// or an object.
	Repository struct {
		Type      string `json:"type"`
		URL       string `json:"url"`
		Directory string `json:"directory"`
	}

	// Patterns is the "workspaces" field: a list of globs or an object with
	// a "packages" list.
	Patterns []string

	// ReleaseSettings are per-package settings under the "rc" key.
	ReleaseSettings struct {
		// TagName is the name tags were historically derived from.
		TagName string `json:"tagName"`
	}
)

// UnmarshalJSON accepts both the string and the object form.
func (r *Repository) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = Repository{URL: s}
		return nil
	}
	type plain Repository
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = Repository(p)
	return nil
}

// UnmarshalJSON accepts both the array and the {"packages": [...]} form.
func (p *Patterns) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*p = list
		return nil
	}
	var obj struct {
		Packages []string `json:"packages"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*p = obj.Packages
	return nil
}

// HasScript reports whether the manifest defines a script.
func (m Manifest) HasScript(name string) bool {
	return strings.TrimSpace(m.Scripts[name]) != ""
}

// ReadManifest reads dir/package.json.
func ReadManifest(dir string) (Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Manifest{}, fmt.Errorf("%w: %s", ErrManifestNotFound, dir)
		}
		return Manifest{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return m, nil
}

// WriteVersion sets the top-level "version" of dir/package.json to ver. Only
// the version value is rewritten; indentation, key order and the rest of the
// document are kept byte for byte. A manifest without a version gets one
// inserted as its first key.
func WriteVersion(dir, ver string) error {
	path := filepath.Join(dir, ManifestFile)
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	out, err := setVersion(data, ver)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", path, err)
	}
	if err := os.WriteFile(path, out, info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// setVersion locates the top-level "version" value by walking the document
// tokens and splices the new value in place.
func setVersion(data []byte, ver string) ([]byte, error) {
	quoted, err := json.Marshal(ver)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("manifest is not a JSON object")
	}
	open := int(dec.InputOffset())

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		afterKey := int(dec.InputOffset())
		if key, _ := keyTok.(string); key != "version" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, err
			}
			continue
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		end := int(dec.InputOffset())
		start := afterKey + bytes.IndexByte(data[afterKey:end], ':') + 1
		for start < end && isSpace(data[start]) {
			start++
		}
		return splice(data, start, end, quoted), nil
	}
	if _, err := dec.Token(); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	indent := detectIndent(data[open:])
	entry := []byte(fmt.Sprintf("\n%s\"version\": %s,", indent, quoted))
	if bytes.HasPrefix(bytes.TrimSpace(data[open:]), []byte("}")) {
		entry = bytes.TrimSuffix(entry, []byte(","))
	}
	return splice(data, open, open, entry), nil
}

func splice(data []byte, start, end int, repl []byte) []byte {
	out := make([]byte, 0, len(data)-(end-start)+len(repl))
	out = append(out, data[:start]...)
	out = append(out, repl...)
	return append(out, data[end:]...)
}

// detectIndent returns the whitespace preceding the first key, defaulting to
// two spaces.
func detectIndent(rest []byte) string {
	i := 0
	for i < len(rest) && isSpace(rest[i]) {
		i++
	}
	ws := string(rest[:i])
	if nl := strings.LastIndexByte(ws, '\n'); nl >= 0 {
		ws = ws[nl+1:]
	}
	if ws == "" {
		return "  "
	}
	return ws
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
