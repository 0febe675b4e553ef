// Package envfile implements the flat KEY=VALUE file the portal saves
// secrets into.
//
// The codec is a pure function pair (text -> mapping, mapping -> text) so it
// can be tested without a server. On read, blank lines and #-comments are
// skipped and each remaining line is split on the first '='; on write, keys
// are sorted ascending and the file ends with a trailing newline.
package envfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileMode is the permission set for the written env file (owner only).
const FileMode os.FileMode = 0o600

// Parse builds a key/value mapping from KEY=VALUE text.
// Blank lines, #-comments, and lines without '=' are ignored.
// Keys and values are trimmed of surrounding whitespace.
func Parse(text string) map[string]string {
	m := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		m[k] = strings.TrimSpace(v)
	}
	return m
}

// Merge overlays submitted onto existing: keys present in both take the
// submitted value, keys only in existing are preserved. Neither input is
// mutated.
func Merge(existing, submitted map[string]string) map[string]string {
	out := make(map[string]string, len(existing)+len(submitted))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range submitted {
		out[k] = v
	}
	return out
}

// Serialize renders the mapping as KEY=VALUE lines sorted by key ascending,
// with a trailing newline. An empty mapping serializes to "".
func Serialize(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(m[k])
		b.WriteByte('\n')
	}
	return b.String()
}

// Load reads and parses the file at path. A missing file is an empty
// mapping, not an error.
func Load(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(string(b)), nil
}

// Write serializes m and atomically replaces the file at path with it.
// The bytes land in a same-directory temp file created owner-only, then a
// rename swaps it in, so the target is never observable half-written or at
// a looser mode.
func Write(path string, m map[string]string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.WriteString(Serialize(m)); err != nil {
		_ = f.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := f.Chmod(FileMode); err != nil {
		_ = f.Close()
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
