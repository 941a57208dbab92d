// Package voice provides speech-to-text and text-to-speech for voice turns.
package voice

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

// Sentinel errors, checked with errors.Is().
var (
	// ErrUnsupportedFormat indicates the uploaded audio type is not accepted.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrSynthesis indicates text-to-speech failed. Voice turns degrade to
	// text-only on this error rather than failing the request.
	ErrSynthesis = errors.New("speech synthesis failed")
)

// Transcriber converts uploaded audio to text. An empty transcript with a
// nil error means the audio contained no intelligible speech.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Clip is synthesized reply audio.
type Clip struct {
	Data     []byte
	MIMEType string
}

// Synthesizer converts reply text to audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (Clip, error)
}

// allowedMIMETypes is the upload whitelist. Parameters (";codecs=opus") are
// stripped before matching.
var allowedMIMETypes = map[string]string{
	"audio/wav":  "audio/wav",
	"audio/webm": "audio/webm",
	"audio/mpeg": "audio/mpeg",
	"audio/mp4":  "audio/mp4",
	"audio/ogg":  "audio/ogg",
}

// extensionMIMETypes maps file extensions to MIME types for uploads whose
// Content-Type header is missing or generic.
var extensionMIMETypes = map[string]string{
	".wav":  "audio/wav",
	".webm": "audio/webm",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".opus": "audio/ogg",
}

// ResolveMIMEType validates an upload against the whitelist using the
// declared content type first and the filename extension as fallback.
// Returns the canonical MIME type or ErrUnsupportedFormat.
func ResolveMIMEType(contentType, filename string) (string, error) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if canonical, ok := allowedMIMETypes[ct]; ok {
		return canonical, nil
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if canonical, ok := extensionMIMETypes[ext]; ok {
		return canonical, nil
	}

	return "", ErrUnsupportedFormat
}
