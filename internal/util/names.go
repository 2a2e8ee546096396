package util

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// fat32Reserved are characters FAT32 and exFAT refuse in file names
const fat32Reserved = `<>:"/\|?*`

// CleanDirname makes a tag value usable as a single directory name on
// FAT32-formatted media. Reserved characters and control characters become
// '_', the name is NFC-normalized, and trailing dots and spaces are trimmed.
// An empty result falls back to fallback.
func CleanDirname(name, fallback string) string {
	name = norm.NFC.String(strings.TrimSpace(name))

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f:
			b.WriteRune('_')
		case strings.ContainsRune(fat32Reserved, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}

	cleaned := strings.TrimRight(b.String(), ". ")
	if cleaned == "" {
		return fallback
	}
	return cleaned
}
