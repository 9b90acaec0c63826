package domain

import (
	"strconv"
)

type ProbeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

type ProbeStream struct {
	Index     int    `json:"index"`
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	BitRate   string `json:"bit_rate"`
}

type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

func (p *ProbeResult) VideoStream() *ProbeStream {
	for i := range p.Streams {
		if p.Streams[i].CodecType == "video" {
			return &p.Streams[i]
		}
	}
	return nil
}

// Dimensions returns the size of the first video stream. Streams probed
// with a video selector may omit codec_type, so the first stream is used
// as a fallback.
func (p *ProbeResult) Dimensions() (width, height int) {
	if vs := p.VideoStream(); vs != nil {
		return vs.Width, vs.Height
	}
	if len(p.Streams) > 0 {
		return p.Streams[0].Width, p.Streams[0].Height
	}
	return 0, 0
}

// DurationSeconds returns the container duration, or 0 when unknown.
func (p *ProbeResult) DurationSeconds() float64 {
	return ParseDuration(p.Format.Duration)
}

// BitRate returns the container bitrate in bits per second, or 0.
func (p *ProbeResult) BitRate() int64 {
	if p.Format.BitRate == "" {
		return 0
	}
	br, err := strconv.ParseInt(p.Format.BitRate, 10, 64)
	if err != nil {
		return 0
	}
	return br
}

func ParseDuration(durationStr string) float64 {
	if durationStr == "" || durationStr == "N/A" {
		return 0
	}
	duration, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return 0
	}
	return duration
}
