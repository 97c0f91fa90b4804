// Package pathutil provides manipulation of the slash-separated names used
// to address dataset files inside a blob root.
package pathutil

import (
	"errors"
	"path"
	"strings"
)

// ErrInvalidName is returned for names that would escape the blob root.
var ErrInvalidName = errors.New("pathutil: invalid name")

// Join joins name elements with slashes, dropping empty elements and
// redundant slashes. The result never starts with a slash.
func Join(elem ...string) string {
	parts := make([]string, 0, len(elem))
	for _, e := range elem {
		e = strings.Trim(e, "/")
		if e != "" {
			parts = append(parts, e)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.TrimPrefix(path.Clean(strings.Join(parts, "/")), "/")
}

// Validate rejects names that are empty, absolute, contain backslashes, or
// contain "." or ".." elements.
func Validate(name string) error {
	if name == "" {
		return errors.Join(ErrInvalidName, errors.New("empty name"))
	}
	if strings.HasPrefix(name, "/") || strings.Contains(name, `\`) {
		return errors.Join(ErrInvalidName, errors.New(name))
	}
	for _, elem := range strings.Split(name, "/") {
		if elem == "." || elem == ".." {
			return errors.Join(ErrInvalidName, errors.New(name))
		}
	}
	return nil
}
