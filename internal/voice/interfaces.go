// Package voice defines the speech collaborators of a turn.
package voice

import (
	"context"
	"errors"
	"time"
)

// ErrNoSpeech is returned by a Transcriber when the audio holds no speech.
var ErrNoSpeech = errors.New("no speech detected")

//go:generate mockgen -source=interfaces.go -destination=../mocks/voice/mock_voice.go -package=mock_voice

// Audio is one recorded utterance as delivered by the chat transport.
type Audio struct {
	Data     []byte
	MIMEType string
	Duration time.Duration
}

// Profile selects the voice used for synthesis.
type Profile struct {
	VoiceID   string
	ModelID   string
	Speed     float64
	Stability float64
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio Audio) (string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string, profile Profile) ([]byte, error)
}

// Extension maps an audio MIME type to a file extension.
func Extension(mimeType string) string {
	switch mimeType {
	case "audio/ogg", "audio/opus":
		return ".ogg"
	case "audio/mpeg":
		return ".mp3"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/mp4", "audio/m4a":
		return ".m4a"
	default:
		return ".bin"
	}
}
