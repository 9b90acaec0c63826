package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/bnema/mediaconv/internal/domain"
	"github.com/bnema/mediaconv/internal/port"
	"go.uber.org/zap"
)

var (
	ErrEmptyPath   = errors.New("path is empty")
	ErrInvalidPath = errors.New("path contains null byte")
)

// minVideoBitrate is the floor applied to computed target bitrates.
const minVideoBitrate = 100000

var crfByLevel = map[string]string{
	"low":    "23",
	"medium": "28",
	"high":   "35",
}

// Converter runs ffmpeg for video and audio jobs, and ffprobe to read
// container metadata.
type Converter struct {
	ffmpegPath  string
	ffprobePath string
	logger      *zap.Logger
}

func NewConverter(ffmpegPath, ffprobePath string, logger *zap.Logger) *Converter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Converter{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		logger:      logger,
	}
}

func validatePath(p string) error {
	if p == "" {
		return ErrEmptyPath
	}
	if strings.ContainsRune(p, 0) {
		return ErrInvalidPath
	}
	return nil
}

func (c *Converter) Transform(ctx context.Context, req domain.TransformRequest) error {
	if err := validatePath(req.InputPath); err != nil {
		return fmt.Errorf("invalid input path: %w", err)
	}
	if err := validatePath(req.OutputPath); err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}

	var args []string
	if isGIFRequest(req) {
		args = gifArgs(req)
	} else {
		var info *domain.ProbeResult
		if needsProbe(req) {
			probed, err := c.Probe(ctx, req.InputPath)
			if err != nil {
				c.logger.Warn("probe failed, using default encoding",
					zap.String("input", req.InputPath),
					zap.Error(err),
				)
			} else {
				info = probed
			}
		}
		args = buildArgs(req, info)
	}

	c.logger.Debug("running ffmpeg", zap.Strings("args", args))
	return c.run(ctx, args)
}

func (c *Converter) run(ctx context.Context, args []string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if line := lastLine(stderr.String()); line != "" {
			return errors.New(line)
		}
		return fmt.Errorf("ffmpeg failed: %w", err)
	}
	return nil
}

func (c *Converter) Probe(ctx context.Context, path string) (*domain.ProbeResult, error) {
	if err := validatePath(path); err != nil {
		return nil, fmt.Errorf("invalid input path: %w", err)
	}
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "format=duration,bit_rate:stream=width,height",
		"-of", "json",
		path,
	}
	output, err := exec.CommandContext(ctx, c.ffprobePath, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseProbeOutput(output)
}

func parseProbeOutput(output []byte) (*domain.ProbeResult, error) {
	var probe domain.ProbeResult
	if len(bytes.TrimSpace(output)) == 0 {
		return &probe, nil
	}
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	return &probe, nil
}

func isVideo(ext string) bool {
	return domain.MediaTypeForExt(ext) == domain.MediaTypeVideo
}

func isGIFRequest(req domain.TransformRequest) bool {
	return req.Action == domain.ActionConvert && isVideo(req.Ext) && normalizedTarget(req.TargetFormat) == "gif"
}

func needsProbe(req domain.TransformRequest) bool {
	return req.Action == domain.ActionCompress && isVideo(req.Ext) &&
		(req.CompMode == "size" || req.CompMode == "percent")
}

func normalizedTarget(format string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
}

func baseArgs(input string) []string {
	return []string{"-hide_banner", "-loglevel", "error", "-y", "-i", input}
}

// buildArgs assembles the ffmpeg command line for a non-GIF request. info
// may be nil when probing failed or was not needed.
func buildArgs(req domain.TransformRequest, info *domain.ProbeResult) []string {
	args := baseArgs(req.InputPath)
	p := req.Params
	video := isVideo(req.Ext)

	if p.FPS != "" {
		args = append(args, "-r", p.FPS)
	}
	if p.AudioSampleRate != "" {
		args = append(args, "-ar", p.AudioSampleRate)
	}
	if p.AudioChannels != "" {
		args = append(args, "-ac", p.AudioChannels)
	}
	if !video {
		args = append(args, "-map_metadata", "0")
	}

	preset := p.VideoPreset
	if preset == "" {
		preset = "medium"
	}

	switch req.Action {
	case domain.ActionCompress:
		if video {
			args = append(args, "-vcodec", "libx264", "-preset", preset)
			args = append(args, videoRateArgs(req.CompMode, req.CompValue, info)...)
			if p.AudioBitrate != "" {
				args = append(args, "-b:a", p.AudioBitrate)
			}
		} else {
			bitrate := p.AudioBitrate
			if bitrate == "" {
				bitrate = "128k"
			}
			args = append(args, "-b:a", bitrate)
			if req.Ext == ".mp3" {
				args = append(args, "-id3v2_version", "3")
			}
		}
	case domain.ActionConvert:
		if video {
			if p.VideoPreset != "" {
				args = append(args, "-preset", preset)
			}
			if p.AudioBitrate != "" {
				args = append(args, "-b:a", p.AudioBitrate)
			}
		} else {
			if p.AudioBitrate != "" {
				args = append(args, "-b:a", p.AudioBitrate)
			}
			if req.Ext == ".mp3" || normalizedTarget(req.TargetFormat) == "mp3" {
				args = append(args, "-id3v2_version", "3")
			}
		}
	}

	return append(args, req.OutputPath)
}

// maxScaleHeight is the tallest output accepted for resolution based
// compression.
const maxScaleHeight = 4320

func videoRateArgs(mode, value string, info *domain.ProbeResult) []string {
	crfDefault := []string{"-crf", "23"}

	switch mode {
	case "size":
		if info == nil || info.DurationSeconds() <= 0 {
			return crfDefault
		}
		sizeMB, err := strconv.ParseFloat(value, 64)
		if err != nil || sizeMB <= 0 {
			return crfDefault
		}
		bitrate := int64(sizeMB * 8 * 1024 * 1024 / info.DurationSeconds())
		return []string{"-b:v", strconv.FormatInt(max(bitrate, minVideoBitrate), 10)}
	case "percent":
		if info == nil || info.BitRate() <= 0 {
			return crfDefault
		}
		percent, err := strconv.ParseFloat(value, 64)
		if err != nil || percent <= 0 {
			return crfDefault
		}
		bitrate := int64(float64(info.BitRate()) * (1 - percent/100))
		return []string{"-b:v", strconv.FormatInt(max(bitrate, minVideoBitrate), 10)}
	case "res":
		height := 720
		if h, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && h > 0 && h <= maxScaleHeight {
			height = h
		}
		return []string{"-vf", "scale=-2:" + strconv.Itoa(height), "-crf", "23"}
	}

	level := strings.TrimSpace(value)
	if level == "" {
		level = "medium"
	}
	if crf, ok := crfByLevel[level]; ok {
		return []string{"-crf", crf}
	}
	return crfDefault
}

// gifArgs builds the two-pass palette filter graph for animated GIFs.
func gifArgs(req domain.TransformRequest) []string {
	p := req.Params
	speed := 1.0
	if v, err := strconv.ParseFloat(p.GIFSpeed, 64); err == nil && v > 0 {
		speed = v
	}
	fps := p.GIFFPS
	if fps == "" {
		fps = "20"
	}
	scale := "scale=-2:480"
	switch res := p.GIFResolution; res {
	case "":
	case "-1":
		scale = "scale=-2:-2"
	default:
		scale = "scale=-2:" + res
	}

	vf := fmt.Sprintf("setpts=%s*PTS,fps=%s,%s:flags=lanczos,split[s0][s1];[s0]palettegen[p];[s1][p]paletteuse",
		strconv.FormatFloat(speed, 'f', -1, 64), fps, scale)

	return append(baseArgs(req.InputPath), "-vf", vf, req.OutputPath)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

var (
	_ port.Transformer = (*Converter)(nil)
	_ port.Prober      = (*Converter)(nil)
)
