package ffmpeg

import "testing"

func TestParseProbe(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		duration float64
		width    int
		video    string
		audio    string
		wantErr  bool
	}{
		{
			name: "format duration",
			input: `{"streams":[{"codec_type":"video","codec_name":"h264","width":1920,"height":1080},
				{"codec_type":"audio","codec_name":"aac"}],
				"format":{"duration":"120.480000","bit_rate":"4000000"}}`,
			duration: 120.48,
			width:    1920,
			video:    "H264",
			audio:    "AAC",
		},
		{
			name: "stream duration fallback",
			input: `{"streams":[{"codec_type":"video","codec_name":"vp9","width":640,"height":360,"duration":"15.5"}],
				"format":{}}`,
			duration: 15.5,
			width:    640,
			video:    "VP9",
		},
		{
			name:    "no duration",
			input:   `{"streams":[],"format":{}}`,
			wantErr: true,
		},
		{
			name:    "garbage",
			input:   `not json`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, err := parseProbe([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", meta)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseProbe() error = %v", err)
			}
			if meta.Duration != tt.duration {
				t.Errorf("Duration = %v, want %v", meta.Duration, tt.duration)
			}
			if meta.Width != tt.width {
				t.Errorf("Width = %v, want %v", meta.Width, tt.width)
			}
			if meta.VideoCodec != tt.video {
				t.Errorf("VideoCodec = %q, want %q", meta.VideoCodec, tt.video)
			}
			if meta.AudioCodec != tt.audio {
				t.Errorf("AudioCodec = %q, want %q", meta.AudioCodec, tt.audio)
			}
		})
	}
}

func TestProbeArgsGuardsSource(t *testing.T) {
	args := probeArgs("-dump_attachment:t:0")
	n := len(args)
	if n < 2 || args[n-2] != "-i" || args[n-1] != "-dump_attachment:t:0" {
		t.Fatalf("probeArgs() = %q, want the source behind -i", args)
	}
}
