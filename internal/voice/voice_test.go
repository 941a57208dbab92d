package voice

import (
	"errors"
	"testing"
)

func TestResolveMIMEType(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		filename    string
		want        string
		wantErr     bool
	}{
		{"wav by content type", "audio/wav", "clip.bin", "audio/wav", false},
		{"webm with codec params", "audio/webm;codecs=opus", "clip", "audio/webm", false},
		{"case insensitive", "AUDIO/MPEG", "x", "audio/mpeg", false},
		{"extension fallback mp3", "application/octet-stream", "note.mp3", "audio/mpeg", false},
		{"extension fallback m4a", "", "Memo.M4A", "audio/mp4", false},
		{"opus extension maps to ogg", "", "voice.opus", "audio/ogg", false},
		{"rejected type and extension", "video/mp4", "clip.mov", "", true},
		{"rejected with no hints", "", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveMIMEType(tt.contentType, tt.filename)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedFormat) {
					t.Fatalf("error = %v, want ErrUnsupportedFormat", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveMIMEType() = %q, want %q", got, tt.want)
			}
		})
	}
}
