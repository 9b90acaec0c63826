package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Params holds the optional per-job transformation settings. Every field
// is kept as the client sent it; Validate checks the shape, the codecs
// interpret the value.
type Params struct {
	FPS             string `json:"fps,omitempty"`
	VideoPreset     string `json:"video_preset,omitempty"`
	AudioBitrate    string `json:"audio_bitrate,omitempty"`
	AudioChannels   string `json:"audio_channels,omitempty"`
	AudioSampleRate string `json:"audio_sample_rate,omitempty"`

	GIFSpeed      string `json:"gif_speed,omitempty"`
	GIFFPS        string `json:"gif_fps,omitempty"`
	GIFResolution string `json:"gif_resolution,omitempty"`

	ImageQuality string `json:"image_quality,omitempty"`
	ImageMaxSize string `json:"image_max_size,omitempty"`
	ICOSize      string `json:"ico_size,omitempty"`

	RelativePath string `json:"relative_path,omitempty"`
	IsCover      bool   `json:"is_cover,omitempty"`
}

var videoPresets = map[string]bool{
	"ultrafast": true, "superfast": true, "veryfast": true, "faster": true, "fast": true,
	"medium": true, "slow": true, "slower": true, "veryslow": true,
}

var bitratePattern = regexp.MustCompile(`^[0-9]+[kK]?$`)

// Validate returns an error wrapping ErrInvalidParams naming the first
// malformed field.
func (p Params) Validate() error {
	checks := []struct {
		name  string
		value string
		ok    func(string) bool
	}{
		{"fps", p.FPS, positiveFloatUpTo(240)},
		{"video_preset", p.VideoPreset, func(s string) bool { return videoPresets[s] }},
		{"audio_bitrate", p.AudioBitrate, bitratePattern.MatchString},
		{"audio_channels", p.AudioChannels, intBetween(1, 8)},
		{"audio_sample_rate", p.AudioSampleRate, intBetween(8000, 192000)},
		{"gif_speed", p.GIFSpeed, positiveFloatUpTo(100)},
		{"gif_fps", p.GIFFPS, intBetween(1, 50)},
		{"gif_resolution", p.GIFResolution, func(s string) bool { return s == "-1" || intBetween(1, 4320)(s) }},
		{"image_quality", p.ImageQuality, validImageQuality},
		{"image_max_size", p.ImageMaxSize, intBetween(1, 65535)},
		{"ico_size", p.ICOSize, func(s string) bool { return strings.EqualFold(s, "original") || intBetween(1, 4096)(s) }},
		{"relative_path", p.RelativePath, func(s string) bool { return SanitizeRelativePath(s) != "" }},
	}
	for _, c := range checks {
		v := strings.TrimSpace(c.value)
		if v == "" {
			continue
		}
		if !c.ok(v) {
			return fmt.Errorf("%w: %s=%q", ErrInvalidParams, c.name, c.value)
		}
	}
	return nil
}

func validImageQuality(s string) bool {
	switch s {
	case "lossless", "low", "medium", "high":
		return true
	}
	return intBetween(1, 100)(s)
}

func intBetween(lo, hi int) func(string) bool {
	return func(s string) bool {
		n, err := strconv.Atoi(s)
		return err == nil && n >= lo && n <= hi
	}
}

func positiveFloatUpTo(hi float64) func(string) bool {
	return func(s string) bool {
		f, err := strconv.ParseFloat(s, 64)
		return err == nil && f > 0 && f <= hi
	}
}
