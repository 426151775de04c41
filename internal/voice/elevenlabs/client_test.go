package elevenlabs

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gidwell/jiro/internal/config"
	"github.com/Gidwell/jiro/internal/voice"
)

func newTestClient(serverURL string) *Client {
	return &Client{
		httpClient:       resty.New().SetBaseURL(serverURL).SetHeader("xi-api-key", "test-key"),
		sttModelID:       "scribe_v1",
		languageCode:     "ja",
		maxRetryAttempts: 1,
	}
}

func TestClient_Transcribe(t *testing.T) {
	tests := []struct {
		name      string
		audio     voice.Audio
		handler   func(t *testing.T, w http.ResponseWriter, r *http.Request)
		want      string
		wantErrIs error
		wantErr   string
	}{
		{
			name:  "Success",
			audio: voice.Audio{Data: []byte("ogg"), MIMEType: "audio/ogg"},
			handler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/speech-to-text", r.URL.Path)
				assert.Equal(t, "test-key", r.Header.Get("xi-api-key"))
				require.NoError(t, r.ParseMultipartForm(1<<20))
				assert.Equal(t, "scribe_v1", r.FormValue("model_id"))
				assert.Equal(t, "ja", r.FormValue("language_code"))
				file, header, err := r.FormFile("file")
				require.NoError(t, err)
				defer file.Close()
				assert.Equal(t, "utterance.ogg", header.Filename)
				body, err := io.ReadAll(file)
				require.NoError(t, err)
				assert.Equal(t, "ogg", string(body))

				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"text": " 駅に行きます ", "language_code": "jpn"}`))
			},
			want: "駅に行きます",
		},
		{
			name:  "Blank transcript",
			audio: voice.Audio{Data: []byte("ogg")},
			handler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"text": "  "}`))
			},
			wantErrIs: voice.ErrNoSpeech,
		},
		{
			name:  "Unauthorized is returned without retry",
			audio: voice.Audio{Data: []byte("ogg")},
			handler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
			wantErr: "status code: 401",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				tt.handler(t, w, r)
			}))
			defer server.Close()

			got, err := newTestClient(server.URL).Transcribe(context.Background(), tt.audio)
			switch {
			case tt.wantErrIs != nil:
				assert.ErrorIs(t, err, tt.wantErrIs)
			case tt.wantErr != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestClient_Transcribe_NoAudio(t *testing.T) {
	_, err := newTestClient("http://127.0.0.1:0").Transcribe(context.Background(), voice.Audio{})
	assert.ErrorIs(t, err, voice.ErrNoSpeech)
}

func TestClient_Synthesize(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "/v1/text-to-speech/voice-1", r.URL.Path)
		assert.Equal(t, "mp3_44100_128", r.URL.Query().Get("output_format"))

		var body synthesisRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "こんにちは", body.Text)
		assert.Equal(t, "eleven_multilingual_v2", body.ModelID)
		assert.Equal(t, defaultStability, body.VoiceSettings.Stability)
		assert.Equal(t, 0.9, body.VoiceSettings.Speed)

		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer server.Close()

	profile := DefaultProfile(config.ElevenLabsConfig{
		VoiceID: "voice-1",
		ModelID: "eleven_multilingual_v2",
		Speed:   0.9,
	})
	audio, err := newTestClient(server.URL).Synthesize(context.Background(), "こんにちは", profile)
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3-bytes"), audio)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_Synthesize_MissingVoice(t *testing.T) {
	_, err := newTestClient("http://127.0.0.1:0").Synthesize(context.Background(), "text", voice.Profile{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "voice id")
}
