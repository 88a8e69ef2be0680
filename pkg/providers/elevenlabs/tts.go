package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sproutbotics/robin/pkg/adapters/tts"
	"github.com/sproutbotics/robin/pkg/resilience"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io/v1"
	defaultModelID = "eleven_multilingual_v2"
	defaultVoice   = "adam"
)

// voicePresets maps friendly voice names to ElevenLabs voice IDs.
var voicePresets = map[string]string{
	"adam":   "pNInz6obpgDQGcFmaJgB",
	"rachel": "21m00Tcm4TlvDq8ikWAM",
	"bella":  "EXAVITQu4vr4xnSDxMaL",
	"antoni": "ErXwobaYiN019PkySvjV",
}

type Config struct {
	APIKey       string
	Voice        string
	ModelID      string
	BaseURL      string
	OutputFormat string
	SampleRate   int
	MaxRetries   int
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.ModelID == "" {
		c.ModelID = defaultModelID
	}
	if c.Voice == "" {
		c.Voice = defaultVoice
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.OutputFormat == "" {
		c.OutputFormat = "pcm_" + strconv.Itoa(c.SampleRate)
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	return c
}

// voiceID resolves a preset name like "adam" to its ElevenLabs voice ID.
// Anything not in the preset table is assumed to already be an ID.
func (c Config) voiceID() string {
	if id, ok := voicePresets[strings.ToLower(c.Voice)]; ok {
		return id
	}
	return c.Voice
}

// Synthesizer renders one reply at a time through the ElevenLabs convert
// API, returning raw 16-bit PCM at the configured sample rate.
type Synthesizer struct {
	cfg    Config
	client *http.Client
	retry  resilience.RetryPolicy
}

func New(cfg Config) *Synthesizer {
	cfg = cfg.withDefaults()
	return &Synthesizer{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
		retry:  resilience.NewRetryPolicy(cfg.MaxRetries, 200*time.Millisecond),
	}
}

var _ tts.Synthesizer = (*Synthesizer)(nil)

func (s *Synthesizer) Name() string { return "elevenlabs" }

type convertRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("no text to synthesize")
	}

	var pcm []byte
	err := s.retry.Do(func() error {
		out, err := s.convert(ctx, text)
		if err != nil {
			return err
		}
		pcm = out
		return nil
	})
	return pcm, err
}

func (s *Synthesizer) convert(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(convertRequest{
		Text:    text,
		ModelID: s.cfg.ModelID,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.8,
		},
	})
	if err != nil {
		return nil, err
	}

	endpoint := s.cfg.BaseURL + "/text-to-speech/" + s.cfg.voiceID() + "?output_format=" + s.cfg.OutputFormat
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, resilience.Permanent(ctx.Err())
		}
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		msg, _ := io.ReadAll(resp.Body)
		return nil, resilience.Permanent(resilience.RateLimitError{Provider: s.Name(), Message: string(msg)})
	}
	if resp.StatusCode >= 500 {
		msg, _ := io.ReadAll(resp.Body)
		return nil, errors.New(string(msg))
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, resilience.Permanent(errors.New(string(msg)))
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(pcm) == 0 {
		return nil, resilience.Permanent(errors.New("empty audio response"))
	}
	return pcm, nil
}
