// Package validation gates untrusted uploads before anything touches the catalog or disk.
// Archives and icons are identified by their leading magic bytes rather than by file name or
// declared content type, SVG icons are passed through a textual sanitizer, and package metadata
// (name, version, descriptions, external links) is checked against allow-list patterns.
package validation

import (
	"bytes"
)

const (
	// MaxArchiveSize is the default upper bound for an .mcaddon archive (200MB)
	MaxArchiveSize = 200 * 1024 * 1024

	// MaxIconSize is the default upper bound for an icon image (2MB)
	MaxIconSize = 2 * 1024 * 1024

	// svgSniffLen bounds how much of an icon is inspected when looking for SVG markup.
	svgSniffLen = 1024
)

var zipMagic = []byte{0x50, 0x4B, 0x03, 0x04}

// IconType describes a recognised icon format.
type IconType struct {
	Valid     bool
	MimeType  string
	Extension string
}

// IsSVG reports whether the icon was sniffed as SVG markup.
func (t IconType) IsSVG() bool {
	return t.Valid && t.Extension == "svg"
}

// IconExtensions lists every extension an icon may be stored under.
var IconExtensions = []string{"png", "jpg", "webp", "gif", "svg"}

type iconSignature struct {
	mime  string
	ext   string
	match func(b []byte) bool
}

// Checked in order; the first match wins.
var iconSignatures = []iconSignature{
	{"image/png", "png", func(b []byte) bool {
		return bytes.HasPrefix(b, []byte{0x89, 0x50, 0x4E, 0x47})
	}},
	{"image/jpeg", "jpg", func(b []byte) bool {
		return bytes.HasPrefix(b, []byte{0xFF, 0xD8, 0xFF})
	}},
	{"image/webp", "webp", func(b []byte) bool {
		return len(b) >= 12 && bytes.Equal(b[0:4], []byte("RIFF")) && bytes.Equal(b[8:12], []byte("WEBP"))
	}},
	{"image/gif", "gif", func(b []byte) bool {
		return bytes.HasPrefix(b, []byte("GIF8"))
	}},
	{"image/svg+xml", "svg", looksLikeSVG},
}

// ValidateArchive reports whether b starts with the ZIP local file header signature.
func ValidateArchive(b []byte) bool {
	return bytes.HasPrefix(b, zipMagic)
}

// ValidateIcon identifies the icon format of b. The zero IconType (Valid=false) is returned
// when no signature matches.
func ValidateIcon(b []byte) IconType {
	for _, sig := range iconSignatures {
		if sig.match(b) {
			return IconType{Valid: true, MimeType: sig.mime, Extension: sig.ext}
		}
	}
	return IconType{}
}

// IconMimeType returns the content type icons stored under ext are served with, or "" for
// an extension that is never written.
func IconMimeType(ext string) string {
	for _, sig := range iconSignatures {
		if sig.ext == ext {
			return sig.mime
		}
	}
	return ""
}

func looksLikeSVG(b []byte) bool {
	head := b
	if len(head) > svgSniffLen {
		head = head[:svgSniffLen]
	}
	return bytes.Contains(head, []byte("<?xml")) || bytes.Contains(head, []byte("<svg"))
}
