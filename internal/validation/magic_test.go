package validation

import (
	"bytes"
	"testing"
)

func TestValidateArchive(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  bool
	}{
		{"zip local header", []byte{0x50, 0x4B, 0x03, 0x04, 0x14, 0x00}, true},
		{"exact magic only", []byte{0x50, 0x4B, 0x03, 0x04}, true},
		{"empty", nil, false},
		{"too short", []byte{0x50, 0x4B, 0x03}, false},
		{"empty zip end record", []byte{0x50, 0x4B, 0x05, 0x06}, false},
		{"gzip", []byte{0x1F, 0x8B, 0x08, 0x00}, false},
		{"text", []byte("PK is not enough"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateArchive(tt.input); got != tt.want {
				t.Errorf("ValidateArchive(% x) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidateIcon(t *testing.T) {
	webp := append([]byte("RIFF"), 0x24, 0x00, 0x00, 0x00)
	webp = append(webp, []byte("WEBPVP8 ")...)

	tests := []struct {
		name     string
		input    []byte
		wantMime string
		wantExt  string
	}{
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "image/png", "png"},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, "image/jpeg", "jpg"},
		{"webp", webp, "image/webp", "webp"},
		{"gif89a", []byte("GIF89a\x01\x00"), "image/gif", "gif"},
		{"gif87a", []byte("GIF87a"), "image/gif", "gif"},
		{"svg with xml prolog", []byte(`<?xml version="1.0"?><svg></svg>`), "image/svg+xml", "svg"},
		{"bare svg", []byte(`<svg xmlns="http://www.w3.org/2000/svg"/>`), "image/svg+xml", "svg"},
		{"svg after whitespace", []byte("\n\n   <svg/>"), "image/svg+xml", "svg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateIcon(tt.input)
			if !got.Valid {
				t.Fatalf("ValidateIcon() Valid = false, want true")
			}
			if got.MimeType != tt.wantMime || got.Extension != tt.wantExt {
				t.Errorf("ValidateIcon() = %+v, want mime %q ext %q", got, tt.wantMime, tt.wantExt)
			}
		})
	}
}

func TestValidateIcon_Invalid(t *testing.T) {
	riffNotWebp := append([]byte("RIFF"), 0x00, 0x00, 0x00, 0x00)
	riffNotWebp = append(riffNotWebp, []byte("WAVE")...)

	late := append(bytes.Repeat([]byte(" "), svgSniffLen), []byte("<svg/>")...)

	tests := []struct {
		name  string
		input []byte
	}{
		{"empty", nil},
		{"zip archive", []byte{0x50, 0x4B, 0x03, 0x04}},
		{"riff wave", riffNotWebp},
		{"truncated riff", []byte("RIFF")},
		{"plain text", []byte("hello world")},
		{"svg beyond sniff window", late},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateIcon(tt.input)
			if got.Valid || got.MimeType != "" || got.Extension != "" {
				t.Errorf("ValidateIcon() = %+v, want zero value", got)
			}
		})
	}
}

func TestValidateIcon_Precedence(t *testing.T) {
	// PNG magic followed by svg text is still a PNG.
	b := append([]byte{0x89, 0x50, 0x4E, 0x47}, []byte("<svg>")...)
	got := ValidateIcon(b)
	if got.Extension != "png" {
		t.Errorf("ValidateIcon() ext = %q, want png", got.Extension)
	}
	if got.IsSVG() {
		t.Error("IsSVG() = true for png")
	}
}

func TestIconMimeType(t *testing.T) {
	for _, ext := range IconExtensions {
		if IconMimeType(ext) == "" {
			t.Errorf("IconMimeType(%q) is empty", ext)
		}
	}
	if got := IconMimeType("jpg"); got != "image/jpeg" {
		t.Errorf("IconMimeType(jpg) = %q, want image/jpeg", got)
	}
	if got := IconMimeType("exe"); got != "" {
		t.Errorf("IconMimeType(exe) = %q, want empty", got)
	}
}
