// Package normalize canonicalizes identifiers before they are stored or
// compared.
package normalize

import (
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Username returns the stored form of a username. Surrounding whitespace is
// trimmed and the name is put in Unicode NFC so visually identical names
// typed on different keyboards match. Case is preserved.
func Username(u string) string {
	return norm.NFC.String(strings.TrimSpace(u))
}

// ImagePath returns the object key for a local image path: forward slashes,
// cleaned, without a leading "./".
func ImagePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.TrimPrefix(path.Clean(p), "./")
}
