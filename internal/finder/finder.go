// Package finder locates files whose content contains a literal pattern.
package finder

import (
	"context"
	"fmt"
)

// Backend names accepted by New.
const (
	BackendNative  = "native"
	BackendRipgrep = "ripgrep"
)

// Finder returns the absolute paths of files under root, at any depth,
// whose content contains pattern literally. Callers treat an error the same
// as zero matches.
type Finder interface {
	Find(ctx context.Context, root, pattern string) ([]string, error)
}

// New returns the Finder for backend. rgPath is the ripgrep executable and
// is only consulted for BackendRipgrep; empty means "rg" on PATH.
func New(backend, rgPath string) (Finder, error) {
	switch backend {
	case "", BackendNative:
		return Native{}, nil
	case BackendRipgrep:
		if rgPath == "" {
			rgPath = "rg"
		}
		return &Ripgrep{Path: rgPath}, nil
	default:
		return nil, fmt.Errorf("finder: unknown backend %q", backend)
	}
}
