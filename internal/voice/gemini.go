package voice

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/reframe-labs/coach/internal/log"
)

// Default Gemini models for the two speech directions.
const (
	DefaultTranscribeModel = "gemini-2.5-flash"
	DefaultSpeechModel     = "gemini-2.5-flash-preview-tts"
	DefaultVoiceName       = "Kore"
)

const transcribeInstruction = "Transcribe this audio verbatim. " +
	"Reply with only the transcript text, nothing else. " +
	"Reply with an empty response if there is no intelligible speech."

// GeminiSpeech implements Transcriber and Synthesizer on the Gemini API.
type GeminiSpeech struct {
	client          *genai.Client
	transcribeModel string
	speechModel     string
	voiceName       string
	logger          log.Logger
}

// GeminiConfig configures NewGeminiSpeech. Zero-value fields use defaults.
type GeminiConfig struct {
	TranscribeModel string
	SpeechModel     string
	VoiceName       string
	Logger          log.Logger
}

// NewGeminiSpeech creates a speech client. The API key comes from the
// GEMINI_API_KEY environment variable, same as the conversation model.
func NewGeminiSpeech(ctx context.Context, cfg GeminiConfig) (*GeminiSpeech, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	if cfg.TranscribeModel == "" {
		cfg.TranscribeModel = DefaultTranscribeModel
	}
	if cfg.SpeechModel == "" {
		cfg.SpeechModel = DefaultSpeechModel
	}
	if cfg.VoiceName == "" {
		cfg.VoiceName = DefaultVoiceName
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	return &GeminiSpeech{
		client:          client,
		transcribeModel: cfg.TranscribeModel,
		speechModel:     cfg.SpeechModel,
		voiceName:       cfg.VoiceName,
		logger:          cfg.Logger,
	}, nil
}

// Transcribe implements Transcriber.
func (g *GeminiSpeech) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(audio, mimeType),
			genai.NewPartFromText(transcribeInstruction),
		}, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.transcribeModel, contents, nil)
	if err != nil {
		return "", fmt.Errorf("transcribing audio: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

// Synthesize implements Synthesizer. Gemini TTS returns PCM samples; the
// MIME type from the response is passed through to the client.
func (g *GeminiSpeech) Synthesize(ctx context.Context, text string) (Clip, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: g.voiceName},
			},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.speechModel, genai.Text(text), cfg)
	if err != nil {
		return Clip{}, fmt.Errorf("%w: %w", ErrSynthesis, err)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return Clip{Data: part.InlineData.Data, MIMEType: part.InlineData.MIMEType}, nil
			}
		}
	}
	return Clip{}, fmt.Errorf("%w: response contained no audio", ErrSynthesis)
}
