// Package elevenlabs adapts the ElevenLabs speech REST API to the voice
// interfaces.
package elevenlabs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-resty/resty/v2"

	"github.com/Gidwell/jiro/internal/config"
	"github.com/Gidwell/jiro/internal/voice"
)

const defaultStability = 0.42

type Client struct {
	httpClient       *resty.Client
	sttModelID       string
	languageCode     string
	maxRetryAttempts uint
}

func NewClient(cfg config.ElevenLabsConfig) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("xi-api-key", cfg.APIKey).
		SetTimeout(120 * time.Second)

	return &Client{
		httpClient:       httpClient,
		sttModelID:       cfg.STTModelID,
		languageCode:     cfg.LanguageCode,
		maxRetryAttempts: cfg.RetryAttempts,
	}
}

// DefaultProfile builds the synthesis profile from the configuration.
func DefaultProfile(cfg config.ElevenLabsConfig) voice.Profile {
	return voice.Profile{
		VoiceID:   cfg.VoiceID,
		ModelID:   cfg.ModelID,
		Speed:     cfg.Speed,
		Stability: defaultStability,
	}
}

type transcriptionResponse struct {
	Text         string  `json:"text"`
	LanguageCode string  `json:"language_code"`
	Probability  float64 `json:"language_probability"`
}

// Transcribe implements voice.Transcriber
func (c *Client) Transcribe(ctx context.Context, audio voice.Audio) (string, error) {
	if len(audio.Data) == 0 {
		return "", voice.ErrNoSpeech
	}

	var text string
	err := c.withRetry(ctx, func() error {
		res, err := c.httpClient.R().
			SetContext(ctx).
			SetFileReader("file", "utterance"+voice.Extension(audio.MIMEType), bytes.NewReader(audio.Data)).
			SetFormData(map[string]string{
				"model_id":      c.sttModelID,
				"language_code": c.languageCode,
			}).
			SetResult(&transcriptionResponse{}).
			Post("/v1/speech-to-text")
		if err != nil {
			return fmt.Errorf("client.R.Post > %w", err)
		}
		if err := statusError(res); err != nil {
			return err
		}
		text = strings.TrimSpace(res.Result().(*transcriptionResponse).Text)
		return nil
	})
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", voice.ErrNoSpeech
	}
	return text, nil
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Synthesize implements voice.Synthesizer. It returns MP3 audio.
func (c *Client) Synthesize(ctx context.Context, text string, profile voice.Profile) ([]byte, error) {
	if profile.VoiceID == "" {
		return nil, errors.New("voice id is not configured")
	}
	stability := profile.Stability
	if stability <= 0 || stability > 1 {
		stability = defaultStability
	}

	body := synthesisRequest{
		Text:    text,
		ModelID: profile.ModelID,
		VoiceSettings: voiceSettings{
			Stability:       stability,
			SimilarityBoost: 0.8,
			Speed:           profile.Speed,
		},
	}

	var audio []byte
	err := c.withRetry(ctx, func() error {
		res, err := c.httpClient.R().
			SetContext(ctx).
			SetHeader("Accept", "audio/mpeg").
			SetQueryParam("output_format", "mp3_44100_128").
			SetBody(body).
			Post("/v1/text-to-speech/" + url.PathEscape(profile.VoiceID))
		if err != nil {
			return fmt.Errorf("client.R.Post > %w", err)
		}
		if err := statusError(res); err != nil {
			return err
		}
		audio = res.Body()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, errors.New("synthesized audio is empty")
	}
	return audio, nil
}

// statusError converts a failed response. Client errors other than rate
// limiting are not retried.
func statusError(res *resty.Response) error {
	if !res.IsError() {
		return nil
	}
	err := fmt.Errorf("status code: %d, body: %s", res.StatusCode(), res.String())
	if res.StatusCode() < http.StatusInternalServerError && res.StatusCode() != http.StatusTooManyRequests {
		return retry.Unrecoverable(err)
	}
	return err
}

func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(c.maxRetryAttempts+1),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			slog.Default().Info("Retrying ElevenLabs API call",
				"attempt", n+1,
				"error", err)
		}),
	)
}
