package collection

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultRoot is the scheme and host prefix Rekordbox puts on every Location
const DefaultRoot = "file://localhost"

const upperhex = "0123456789ABCDEF"

// EncodeLocation converts a filesystem path to a Location attribute value.
// Unreserved characters plus "()/" are kept literally.
func EncodeLocation(root, syspath string) string {
	var b strings.Builder
	b.Grow(len(root) + len(syspath)*3/2)
	b.WriteString(root)
	for i := 0; i < len(syspath); i++ {
		c := syspath[i]
		if keepLiteral(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

// LocationToPath converts a Location attribute value back to a filesystem path
func LocationToPath(root, location string) (string, error) {
	decoded, err := url.PathUnescape(location)
	if err != nil {
		return "", fmt.Errorf("decode location %q: %w", location, err)
	}
	p := strings.TrimPrefix(decoded, root)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p, nil
}

// HasRoot reports whether location carries the expected root marker
func HasRoot(root, location string) bool {
	return strings.HasPrefix(location, root)
}

func keepLiteral(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '.', '_', '~', '(', ')', '/':
		return true
	}
	return false
}
