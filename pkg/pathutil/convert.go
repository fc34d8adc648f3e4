// Package pathutil converts between filesystem paths and file:// URIs.
//
// The index uses URIs as document keys (the editor protocol speaks URIs)
// and absolute paths for filesystem access; this package is the conversion
// layer between the two representations.
package pathutil

import (
	"net/url"
	"path/filepath"
	"strings"
)

// ToURI converts an absolute filesystem path to a file:// URI.
// Relative paths are made absolute first.
func ToURI(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	abs = filepath.ToSlash(abs)
	if !strings.HasPrefix(abs, "/") {
		// Windows drive paths like C:/...
		abs = "/" + abs
	}
	return "file://" + (&url.URL{Path: abs}).EscapedPath()
}

// ToPath converts a file:// URI back to a filesystem path. Non-file URIs
// are returned unchanged so virtual documents keep their identity.
func ToPath(uri string) string {
	if !strings.HasPrefix(uri, "file://") {
		return uri
	}
	u, err := url.Parse(uri)
	if err != nil {
		return strings.TrimPrefix(uri, "file://")
	}
	p := u.Path
	// Windows drive paths round-trip as /C:/...
	if len(p) >= 3 && p[0] == '/' && p[2] == ':' {
		p = p[1:]
	}
	return filepath.FromSlash(p)
}

// ToRelative converts an absolute path to relative based on a root
// directory. Falls back to the original path when the file sits outside
// the root or conversion fails.
func ToRelative(absPath, rootDir string) string {
	if absPath == "" || rootDir == "" || !filepath.IsAbs(absPath) {
		return absPath
	}
	relPath, err := filepath.Rel(filepath.Clean(rootDir), filepath.Clean(absPath))
	if err != nil || strings.HasPrefix(relPath, "..") {
		return absPath
	}
	return relPath
}
