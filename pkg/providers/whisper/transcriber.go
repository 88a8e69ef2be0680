package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sproutbotics/robin/pkg/adapters/stt"
	"github.com/sproutbotics/robin/pkg/resilience"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "whisper-1"
)

type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	Language   string
	SampleRate int
	Channels   int
	MaxRetries int
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Language == "" {
		c.Language = "en"
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	return c
}

// Transcriber sends one buffered utterance to the OpenAI transcription
// API. The capture buffer is raw 16-bit PCM, so it is wrapped as WAV
// before upload. Server errors are retried, client errors are not.
type Transcriber struct {
	cfg    Config
	client *http.Client
	retry  resilience.RetryPolicy
}

func New(cfg Config) *Transcriber {
	cfg = cfg.withDefaults()
	return &Transcriber{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
		retry:  resilience.NewRetryPolicy(cfg.MaxRetries, 200*time.Millisecond),
	}
}

var _ stt.Transcriber = (*Transcriber)(nil)

func (t *Transcriber) Name() string { return "whisper" }

func (t *Transcriber) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	if len(pcm) == 0 {
		return "", errors.New("no audio to transcribe")
	}
	wav := wrapWAV(pcm, t.cfg.SampleRate, t.cfg.Channels)

	var text string
	err := t.retry.Do(func() error {
		out, err := t.upload(ctx, wav)
		if err != nil {
			return err
		}
		text = out
		return nil
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (t *Transcriber) upload(ctx context.Context, wav []byte) (string, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(wav); err != nil {
		return "", err
	}
	if err := form.WriteField("model", t.cfg.Model); err != nil {
		return "", err
	}
	if err := form.WriteField("language", t.cfg.Language); err != nil {
		return "", err
	}
	if err := form.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", resilience.Permanent(ctx.Err())
		}
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		msg, _ := io.ReadAll(resp.Body)
		return "", resilience.Permanent(resilience.RateLimitError{Provider: t.Name(), Message: string(msg)})
	}
	if resp.StatusCode >= 500 {
		msg, _ := io.ReadAll(resp.Body)
		return "", errors.New(string(msg))
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", resilience.Permanent(errors.New(string(msg)))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", resilience.Permanent(err)
	}
	return out.Text, nil
}

// wrapWAV prefixes raw little-endian 16-bit PCM with a 44 byte RIFF header.
func wrapWAV(pcm []byte, sampleRate, channels int) []byte {
	const bitsPerSample = 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	wav := make([]byte, 44+len(pcm))
	copy(wav[0:4], "RIFF")
	putLE32(wav[4:8], uint32(36+len(pcm)))
	copy(wav[8:12], "WAVE")
	copy(wav[12:16], "fmt ")
	putLE32(wav[16:20], 16)
	putLE16(wav[20:22], 1)
	putLE16(wav[22:24], uint16(channels))
	putLE32(wav[24:28], uint32(sampleRate))
	putLE32(wav[28:32], uint32(byteRate))
	putLE16(wav[32:34], uint16(blockAlign))
	putLE16(wav[34:36], bitsPerSample)
	copy(wav[36:40], "data")
	putLE32(wav[40:44], uint32(len(pcm)))
	copy(wav[44:], pcm)
	return wav
}

func putLE16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
