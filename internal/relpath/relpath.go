// Package relpath computes the relative path by which a note is referenced
// from a given directory.
package relpath

import (
	"path/filepath"
	"strings"
)

// Canonical resolves p to an absolute, symlink-free path. It fails when p
// does not exist or cannot be read.
func Canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// Relativize returns the shortest relative path from base to target, joined
// with "/". Both arguments are canonicalized first. If either cannot be
// canonicalized, the best available form of base is returned unchanged
// (canonical if base resolved, otherwise as given).
//
// When base and target are the same path the result is empty.
func Relativize(base, target string) string {
	canonBase, err := Canonical(base)
	if err != nil {
		return base
	}
	canonTarget, err := Canonical(target)
	if err != nil {
		return canonBase
	}

	baseParts := components(canonBase)
	targetParts := components(canonTarget)

	common := 0
	for common < len(baseParts) && common < len(targetParts) && baseParts[common] == targetParts[common] {
		common++
	}

	out := make([]string, 0, len(baseParts)-common+len(targetParts)-common)
	for range baseParts[common:] {
		out = append(out, "..")
	}
	out = append(out, targetParts[common:]...)
	return strings.Join(out, "/")
}

// components splits a clean absolute path into its names. The filesystem
// root (and volume name, where one exists) yields no component of its own.
func components(p string) []string {
	p = p[len(filepath.VolumeName(p)):]
	p = strings.Trim(filepath.ToSlash(p), "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
