package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"simple", "Better Furnaces", "Better Furnaces", false},
		{"trimmed", "  Ores+  ", "Ores+", false},
		{"unicode letters", "Café Décor", "Café Décor", false},
		{"punctuation", "Steve's Tools (v2) & More!", "Steve's Tools (v2) & More!", false},
		{"digit first", "3D Blocks", "3D Blocks", false},
		{"max length", strings.Repeat("a", 64), strings.Repeat("a", 64), false},
		{"empty", "", "", true},
		{"only spaces", "   ", "", true},
		{"too long", strings.Repeat("a", 65), "", true},
		{"leading punctuation", ".hidden", "", true},
		{"path separator", "a/b", "", true},
		{"traversal", "..", "", true},
		{"angle brackets", "<script>", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidName) {
				t.Errorf("ValidateName(%q) error = %v, want ErrInvalidName", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ValidateName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeVersion(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"", DefaultVersion, false},
		{"  ", DefaultVersion, false},
		{"1.2.3", "1.2.3", false},
		{" 0.0.1 ", "0.0.1", false},
		{"10.20.30", "10.20.30", false},
		{"1.0", "", true},
		{"v1.0.0", "", true},
		{"1.0.0-beta", "", true},
		{"1.0.0+build", "", true},
		{"latest", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NormalizeVersion(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeVersion(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidVersion) {
				t.Errorf("error = %v, want ErrInvalidVersion", err)
			}
			if got != tt.want {
				t.Errorf("NormalizeVersion(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidateDescriptions(t *testing.T) {
	if err := ValidateDescription(strings.Repeat("é", MaxDescriptionLength)); err != nil {
		t.Errorf("ValidateDescription at limit: %v", err)
	}
	if err := ValidateDescription(strings.Repeat("a", MaxDescriptionLength+1)); !errors.Is(err, ErrFieldTooLong) {
		t.Errorf("ValidateDescription over limit: got %v, want ErrFieldTooLong", err)
	}
	if err := ValidateLongDescription(strings.Repeat("a", MaxLongDescriptionLength)); err != nil {
		t.Errorf("ValidateLongDescription at limit: %v", err)
	}
	if err := ValidateLongDescription(strings.Repeat("a", MaxLongDescriptionLength+1)); !errors.Is(err, ErrFieldTooLong) {
		t.Errorf("ValidateLongDescription over limit: got %v, want ErrFieldTooLong", err)
	}
}

func TestValidateLink(t *testing.T) {
	tests := []struct {
		kind    LinkKind
		url     string
		wantErr bool
	}{
		{LinkKofi, "", false},
		{LinkKofi, "https://ko-fi.com/steve", false},
		{LinkKofi, "https://www.ko-fi.com/steve_builds/", false},
		{LinkKofi, "http://ko-fi.com/steve", true},
		{LinkKofi, "https://ko-fi.com.evil.example/steve", true},
		{LinkPatreon, "https://www.patreon.com/some-creator", false},
		{LinkPatreon, "https://patreon.com/", true},
		{LinkDiscord, "https://discord.gg/abc123", false},
		{LinkDiscord, "https://discord.com/invite/abc-123", false},
		{LinkDiscord, "https://discord.com/channels/1", true},
		{LinkGitHub, "https://github.com/octocat", false},
		{LinkGitHub, "https://github.com/octocat/hello-world", false},
		{LinkGitHub, "https://github.com/octocat/hello/tree/main", true},
		{LinkGitHub, "javascript:alert(1)", true},
		{LinkYouTube, "https://www.youtube.com/@creator", false},
		{LinkYouTube, "https://youtube.com/channel/UCabcdefghijklmnopqrstuv", false},
		{LinkYouTube, "https://www.youtube.com/c/CreatorName", false},
		{LinkYouTube, "https://youtu.be/dQw4w9WgXcQ", false},
		{LinkYouTube, "https://youtube.com/watch?v=dQw4w9WgXcQ", true},
		{LinkKind("myspace"), "https://myspace.com/x", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind)+" "+tt.url, func(t *testing.T) {
			err := ValidateLink(tt.kind, tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateLink(%s, %q) error = %v, wantErr %v", tt.kind, tt.url, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidLink) {
				t.Errorf("error = %v, want ErrInvalidLink", err)
			}
		})
	}
}
