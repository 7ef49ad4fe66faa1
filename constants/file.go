package constants

import (
	"path/filepath"
	"strings"
)

// AllowedExtensions holds the file extensions accepted for extraction uploads.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"docx": {},
}

// NormalizeExt returns the lowercased extension of a path without the dot.
func NormalizeExt(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// IsAllowedExt reports whether the path's extension is accepted.
func IsAllowedExt(path string) bool {
	_, ok := AllowedExtensions[NormalizeExt(path)]
	return ok
}
