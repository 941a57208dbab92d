package api

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"

	"github.com/reframe-labs/coach/internal/voice"
)

// emptyTranscriptReply is sent without an LLM call when the audio
// contained no intelligible speech.
const emptyTranscriptReply = "I didn't catch that. Could you say it again?"

type voiceChatResponse struct {
	Transcript     string `json:"transcript"`
	ReplyText      string `json:"reply_text"`
	ReplyAudio     string `json:"reply_audio,omitempty"`
	ReplyAudioMIME string `json:"reply_audio_mime,omitempty"`
}

// handleVoiceChat runs one voice turn: transcribe the upload, run a
// non-streaming conversation turn, synthesize the reply. Synthesis
// failures degrade to a text-only response.
func (s *Server) handleVoiceChat(w http.ResponseWriter, r *http.Request) {
	if s.transcriber == nil {
		writeError(w, http.StatusNotFound, "not_found", "voice chat is not enabled", s.logger)
		return
	}

	credential := CredentialFromContext(r.Context())
	sessionID := r.PathValue("id")

	if ok, retryAfter := s.limiter.Allow(credential, categoryMessage); !ok {
		writeRateLimited(w, retryAfter, s.logger)
		return
	}

	release, ok := s.limiter.AcquireVoice(credential)
	if !ok {
		writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "too many concurrent voice turns", s.logger)
		return
	}
	defer release()

	r.Body = http.MaxBytesReader(w, r.Body, s.audioMaxBytes)
	if err := r.ParseMultipartForm(s.audioMaxBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "validation_error", "audio upload too large", s.logger)
			return
		}
		writeError(w, http.StatusBadRequest, "validation_error", "invalid multipart body", s.logger)
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "missing audio field", s.logger)
		return
	}
	defer file.Close()

	mimeType, err := voice.ResolveMIMEType(header.Header.Get("Content-Type"), header.Filename)
	if err != nil {
		status, code, message := classifyError(err)
		writeError(w, status, code, message, s.logger)
		return
	}

	audio, err := io.ReadAll(file)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "validation_error", "audio upload too large", s.logger)
			return
		}
		writeError(w, http.StatusBadRequest, "validation_error", "failed to read audio", s.logger)
		return
	}

	transcript, err := s.transcriber.Transcribe(r.Context(), audio, mimeType)
	if err != nil {
		s.logger.Warn("transcription failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusBadGateway, "upstream_error", "transcription failed", s.logger)
		return
	}

	resp := voiceChatResponse{Transcript: transcript}
	if transcript == "" {
		resp.ReplyText = emptyTranscriptReply
	} else {
		reply, _, err := s.engine.Reply(r.Context(), sessionID, credential, transcript)
		if err != nil {
			status, code, message := classifyError(err)
			writeError(w, status, code, message, s.logger)
			return
		}
		resp.ReplyText = reply
	}

	if s.synthesizer != nil {
		clip, err := s.synthesizer.Synthesize(r.Context(), resp.ReplyText)
		if err != nil {
			s.logger.Warn("speech synthesis failed, returning text only",
				"session_id", sessionID,
				"error", err,
			)
		} else {
			resp.ReplyAudio = base64.StdEncoding.EncodeToString(clip.Data)
			resp.ReplyAudioMIME = clip.MIMEType
		}
	}

	writeJSON(w, http.StatusOK, resp, s.logger)
}
