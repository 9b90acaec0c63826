package domain

import (
	"path/filepath"
	"strings"
)

type MediaType string

const (
	MediaTypeVideo   MediaType = "video"
	MediaTypeAudio   MediaType = "audio"
	MediaTypePDF     MediaType = "pdf"
	MediaTypeImage   MediaType = "image"
	MediaTypeUnknown MediaType = "unknown"
)

var videoExts = map[string]bool{
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true, ".webm": true, ".wmv": true,
	".flv": true, ".m4v": true, ".mpeg": true, ".mpg": true, ".3gp": true, ".3g2": true,
	".ts": true, ".mts": true, ".m2ts": true, ".vob": true, ".ogv": true, ".divx": true,
	".xvid": true, ".asf": true, ".rm": true, ".rmvb": true, ".f4v": true,
}

var audioExts = map[string]bool{
	".mp3": true, ".wav": true, ".m4a": true, ".flac": true, ".aac": true, ".ogg": true,
	".wma": true, ".aiff": true, ".aif": true, ".opus": true, ".ac3": true, ".dts": true,
	".amr": true, ".ape": true, ".mka": true, ".mpa": true, ".au": true, ".ra": true,
	".mid": true, ".midi": true,
}

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".tiff": true, ".tif": true,
	".bmp": true, ".psd": true, ".heic": true, ".heif": true, ".webp": true, ".ico": true,
	".jp2": true, ".j2k": true, ".jpf": true, ".jpm": true, ".raw": true, ".cr2": true,
	".nef": true, ".arw": true, ".dng": true, ".orf": true, ".rw2": true, ".pef": true,
	".tga": true, ".sgi": true, ".qtif": true, ".pict": true, ".icns": true,
}

// Ext returns the lower-cased extension of name, dot included.
func Ext(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// DetectMediaType derives the media type from the filename extension.
// maxFormatLength bounds a target format such as "mp4" or "jpeg".
const maxFormatLength = 10

// NormalizeFormat lowercases a target format and strips a leading dot. It
// reports false unless the result is 1 to 10 ASCII letters or digits.
func NormalizeFormat(raw string) (string, bool) {
	f := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), "."))
	if f == "" || len(f) > maxFormatLength {
		return f, false
	}
	for i := 0; i < len(f); i++ {
		c := f[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return f, false
		}
	}
	return f, true
}

func DetectMediaType(filename string) MediaType {
	return MediaTypeForExt(Ext(filename))
}

func MediaTypeForExt(ext string) MediaType {
	switch {
	case videoExts[ext]:
		return MediaTypeVideo
	case audioExts[ext]:
		return MediaTypeAudio
	case ext == ".pdf":
		return MediaTypePDF
	case imageExts[ext]:
		return MediaTypeImage
	}
	return MediaTypeUnknown
}

var coverNames = map[string]bool{
	"cover.jpg":  true,
	"cover.jpeg": true,
	"cover.png":  true,
}

// IsCoverImage reports whether filename is an album cover that is passed
// through untouched instead of being processed.
func IsCoverImage(filename string) bool {
	return coverNames[strings.ToLower(filename)]
}

// IsIgnoredFilename reports OS metadata files that are never accepted.
func IsIgnoredFilename(filename string) bool {
	if strings.HasPrefix(filename, "._") {
		return true
	}
	switch strings.ToLower(filename) {
	case ".ds_store", "thumbs.db":
		return true
	}
	return false
}
