// Package parser contains the pure parsing and normalization helpers for
// the scraper: filename cleanup, URL resolution, and the goquery-based
// listing and detail page extractors.
package parser

import (
	"net/url"
	"path"
	"strings"
)

// invalidFilenameChars are the characters disallowed by common filesystems.
const invalidFilenameChars = `<>:"/\|?*`

// maxTitleLength caps sanitized titles so filenames stay within filesystem
// limits.
const maxTitleLength = 150

// SanitizeFilename strips filesystem-invalid characters from a product title
// and truncates the result to 150 characters. Always returns a string, empty
// when nothing survives.
func SanitizeFilename(title string) string {
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(invalidFilenameChars, r) {
			return -1
		}
		return r
	}, title)

	runes := []rune(cleaned)
	if len(runes) > maxTitleLength {
		return string(runes[:maxTitleLength])
	}
	return cleaned
}

// ResolveURL turns a protocol-relative URL into an absolute https URL.
// Anything else is returned unchanged.
func ResolveURL(u string) string {
	if strings.HasPrefix(u, "//") {
		return "https:" + u
	}
	return u
}

// FileExtension infers the file extension from the URL path, ignoring any
// query string. Defaults to ".jpg" when the path carries no extension.
func FileExtension(imageURL string) string {
	ext := ""
	if parsed, err := url.Parse(imageURL); err == nil {
		ext = path.Ext(parsed.Path)
	} else {
		ext = path.Ext(imageURL)
	}
	if ext == "" {
		return ".jpg"
	}
	return ext
}
