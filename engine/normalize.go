package engine

import (
	"errors"
	"path"
	"path/filepath"
	"strings"
)

// SlashNormalizer is the default PathNormalizer: forward slashes only,
// dot segments resolved, no trailing slash. It does not consult the
// filesystem, so the same input always canonicalizes the same way.
type SlashNormalizer struct{}

func (SlashNormalizer) Canonical(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", errors.New("empty path")
	}
	cleaned := path.Clean(filepath.ToSlash(p))
	if cleaned == "." {
		return "", errors.New("relative path has no canonical form")
	}
	return cleaned, nil
}
