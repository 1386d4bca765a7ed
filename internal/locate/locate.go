// Package locate resolves CLI names to executable paths. It is the
// "find the binary" collaborator consumed by the probing pipeline: a
// PATH lookup, plus config overrides and the usual install directories
// that GUI-launched processes do not have on their PATH.
package locate

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// ErrNotFound wraps all lookup failures so callers can treat "not
// installed" uniformly.
var ErrNotFound = fmt.Errorf("executable not found")

// Finder resolves CLI names, honoring explicit per-name overrides first.
type Finder struct {
	overrides map[string]string
}

// NewFinder returns a Finder. overrides maps CLI name to an explicit
// path (from the config file); nil is fine.
func NewFinder(overrides map[string]string) *Finder {
	return &Finder{overrides: overrides}
}

// fallbackDirs are searched after PATH. npm and Homebrew installs
// commonly land here without being on a login shell's PATH.
func fallbackDirs() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	dirs := []string{
		"/usr/local/bin",
		"/opt/homebrew/bin",
	}
	if home != "" {
		dirs = append(dirs,
			filepath.Join(home, ".local", "bin"),
			filepath.Join(home, "bin"),
			filepath.Join(home, ".npm-global", "bin"),
		)
	}
	return dirs
}

// Resolve returns the executable path for name.
func (f *Finder) Resolve(name string) (string, error) {
	if override, ok := f.overrides[name]; ok && override != "" {
		if isExecutable(override) {
			return override, nil
		}
		return "", fmt.Errorf("%w: configured path %s for %s", ErrNotFound, override, name)
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	for _, dir := range fallbackDirs() {
		candidate := filepath.Join(dir, name)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Available reports whether name resolves at all.
func (f *Finder) Available(name string) bool {
	_, err := f.Resolve(name)
	return err == nil
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}
