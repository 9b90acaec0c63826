package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple filename", "video.mp4", "video.mp4"},
		{"filename with spaces", "my video file.mp4", "my video file.mp4"},
		{"filename with multiple dots", "file.name.with.dots.mp4", "file.name.with.dots.mp4"},
		{"dashes and underscores", "my-video_file.mp4", "my-video_file.mp4"},

		{"unicode french", "vidéo.mp4", "vidéo.mp4"},
		{"unicode japanese", "動画.mp4", "動画.mp4"},
		{"unicode emoji", "my🎬video.mp4", "my🎬video.mp4"},

		{"double quote", `file"name.mp4`, "file_name.mp4"},
		{"backslash", `file\name.mp4`, "file_name.mp4"},
		{"newline LF", "file\nname.mp4", "file_name.mp4"},
		{"newline CRLF", "file\r\nname.mp4", "file__name.mp4"},
		{"control character NUL", "file\x00name.mp4", "file_name.mp4"},
		{"control character DEL", "file\x7Fname.mp4", "file_name.mp4"},
		{"forward slash", "file/name.mp4", "file_name.mp4"},
		{"colon", "file:name.mp4", "file_name.mp4"},

		{"path traversal", "../../../etc/passwd", ".._.._.._etc_passwd"},
		{"leading dots kept", "..secret.mp4", "..secret.mp4"},

		{"empty string", "", "file"},
		{"only whitespace", "   ", "file"},
		{"only dangerous chars", `"/\:`, "file"},
		{"multiple dangerous chars", `"file\with:bad/chars"`, "_file_with_bad_chars_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeFilename(tt.input))
		})
	}
}

func TestSanitizeFilename_LongFilenames(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLen int
		wantExt string
	}{
		{"at limit", strings.Repeat("a", 255), 255, ""},
		{"over limit without extension", strings.Repeat("a", 300), 255, ""},
		{"over limit keeps extension", strings.Repeat("a", 300) + ".mp4", 255, ".mp4"},
		{"over limit keeps long extension", strings.Repeat("a", 300) + ".jpeg", 255, ".jpeg"},
		{"exactly 255 with extension", strings.Repeat("a", 251) + ".mp4", 255, ".mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeFilename(tt.input)
			assert.Len(t, result, tt.wantLen)
			if tt.wantExt != "" {
				assert.True(t, strings.HasSuffix(result, tt.wantExt))
			}
		})
	}
}

func TestSanitizeFilename_MultibyteBoundary(t *testing.T) {
	input := strings.Repeat("é", 200) + ".png"
	result := SanitizeFilename(input)
	assert.LessOrEqual(t, len(result), 255)
	assert.True(t, strings.HasSuffix(result, ".png"))
	assert.NotContains(t, result, "\uFFFD")
}

func TestUploadFilename(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"photo.jpg", "photo.jpg"},
		{"album/cover.jpg", "cover.jpg"},
		{`C:\Users\me\clip.mov`, "clip.mov"},
		{"../../etc/passwd", "passwd"},
		{"dir/", "file"},
		{"._photo.jpg", "._photo.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, UploadFilename(tt.raw))
		})
	}
}
