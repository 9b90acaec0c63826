package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		wantErr bool
	}{
		{"empty", Params{}, false},
		{"full video set", Params{FPS: "29.97", VideoPreset: "slow", AudioBitrate: "192k", AudioChannels: "2", AudioSampleRate: "48000"}, false},
		{"gif set", Params{GIFSpeed: "0.5", GIFFPS: "15", GIFResolution: "-1"}, false},
		{"image set", Params{ImageQuality: "lossless", ImageMaxSize: "1024", ICOSize: "original"}, false},
		{"numeric quality", Params{ImageQuality: "75"}, false},
		{"bad fps", Params{FPS: "fast"}, true},
		{"zero fps", Params{FPS: "0"}, true},
		{"unknown preset", Params{VideoPreset: "ludicrous"}, true},
		{"bitrate injection", Params{AudioBitrate: "128k -f null"}, true},
		{"too many channels", Params{AudioChannels: "32"}, true},
		{"odd sample rate", Params{AudioSampleRate: "12"}, true},
		{"negative gif speed", Params{GIFSpeed: "-2"}, true},
		{"bad gif resolution", Params{GIFResolution: "huge"}, true},
		{"quality out of range", Params{ImageQuality: "150"}, true},
		{"bad ico size", Params{ICOSize: "big"}, true},
		{"folder path", Params{RelativePath: "album/disc 1/track.flac"}, false},
		{"escaping path", Params{RelativePath: "../../etc/passwd"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidParams)
				assert.ErrorIs(t, err, ErrRejected)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
