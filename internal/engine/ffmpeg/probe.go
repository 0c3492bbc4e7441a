package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

type Metadata struct {
	Duration   float64 // seconds
	Width      int
	Height     int
	VideoCodec string
	AudioCodec string
	Bitrate    int64
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Duration  string `json:"duration"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
	BitRate  string `json:"bit_rate"`
}

// Probe reads container and stream metadata for url with ffprobe.
func Probe(ctx context.Context, ffprobePath, url string) (*Metadata, error) {
	output, err := exec.CommandContext(ctx, ffprobePath, probeArgs(url)...).Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbe(output)
}

// probeArgs passes url through -i so a source starting with "-" is never
// read as an option.
func probeArgs(url string) []string {
	return []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-i", url,
	}
}

func parseProbe(output []byte) (*Metadata, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	meta := &Metadata{}

	if probe.Format.Duration != "" {
		if dur, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			meta.Duration = dur
		}
	}

	if probe.Format.BitRate != "" {
		if br, err := strconv.ParseInt(probe.Format.BitRate, 10, 64); err == nil {
			meta.Bitrate = br
		}
	}

	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			if meta.VideoCodec == "" {
				meta.VideoCodec = strings.ToUpper(stream.CodecName)
				meta.Width = stream.Width
				meta.Height = stream.Height
				// Some containers only carry duration on the stream
				if meta.Duration == 0 && stream.Duration != "" {
					if dur, err := strconv.ParseFloat(stream.Duration, 64); err == nil {
						meta.Duration = dur
					}
				}
			}
		case "audio":
			if meta.AudioCodec == "" {
				meta.AudioCodec = strings.ToUpper(stream.CodecName)
			}
		}
	}

	if meta.Duration <= 0 {
		return nil, fmt.Errorf("no duration in ffprobe output")
	}

	return meta, nil
}
