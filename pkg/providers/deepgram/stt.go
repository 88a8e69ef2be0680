package deepgram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sproutbotics/robin/pkg/adapters/stt"
	"github.com/sproutbotics/robin/pkg/logging"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

// settleTimeout bounds the wait for trailing finals after the audio has
// been fully streamed.
const settleTimeout = 5 * time.Second

type Config struct {
	APIKey     string
	Model      string
	Language   string
	Encoding   string
	SampleRate int
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "nova-2"
	}
	if c.Language == "" {
		c.Language = "en"
	}
	if c.Encoding == "" {
		c.Encoding = "linear16"
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	return c
}

// Transcriber runs one live session per utterance: it streams the
// buffered capture, closes the session, and joins the final transcripts
// the session produced.
type Transcriber struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config) *Transcriber {
	return &Transcriber{
		cfg:    cfg.withDefaults(),
		logger: logging.NewComponentLogger(slog.Default(), "deepgram_stt"),
	}
}

var _ stt.Transcriber = (*Transcriber)(nil)

func (t *Transcriber) Name() string { return "deepgram" }

func (t *Transcriber) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	if len(pcm) == 0 {
		return "", errors.New("no audio to transcribe")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	clientOptions := &interfaces.ClientOptions{
		EnableKeepAlive: true,
	}
	transcriptOptions := &interfaces.LiveTranscriptionOptions{
		Model:       t.cfg.Model,
		Language:    t.cfg.Language,
		Encoding:    t.cfg.Encoding,
		SampleRate:  t.cfg.SampleRate,
		SmartFormat: true,
	}

	col := newCollector(t.logger)
	dgClient, err := client.NewWSUsingCallback(ctx, t.cfg.APIKey, clientOptions, transcriptOptions, col)
	if err != nil {
		t.logger.Error("deepgram_client_create_error",
			slog.String("error", err.Error()))
		return "", err
	}
	if connected := dgClient.Connect(); !connected {
		return "", fmt.Errorf("deepgram connection failed")
	}

	t.logger.Debug("deepgram_session_opened",
		slog.String("model", t.cfg.Model),
		slog.Int("audio_bytes", len(pcm)))

	streamErr := dgClient.Stream(bytes.NewReader(pcm))
	dgClient.Stop()
	if streamErr != nil && ctx.Err() == nil {
		t.logger.Error("deepgram_stream_error",
			slog.String("error", streamErr.Error()))
		return "", streamErr
	}

	select {
	case <-col.closed:
	case <-time.After(settleTimeout):
		t.logger.Warn("deepgram_settle_timeout")
	case <-ctx.Done():
		return "", ctx.Err()
	}

	text := col.transcript()
	if text == "" {
		if err := col.lastError(); err != nil {
			return "", err
		}
	}
	return text, nil
}

// collector accumulates final transcripts from one live session.
type collector struct {
	mu        sync.Mutex
	finals    []string
	err       error
	closed    chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

func newCollector(logger *slog.Logger) *collector {
	return &collector{
		closed: make(chan struct{}),
		logger: logger,
	}
}

func (c *collector) transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.TrimSpace(strings.Join(c.finals, " "))
}

func (c *collector) lastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *collector) Open(or *msginterfaces.OpenResponse) error {
	return nil
}

func (c *collector) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	transcript := mr.Channel.Alternatives[0].Transcript
	if transcript == "" {
		return nil
	}
	if !mr.IsFinal && !mr.SpeechFinal {
		return nil
	}
	c.logger.Debug("transcript_received",
		slog.String("transcript", transcript),
		slog.Bool("speech_final", mr.SpeechFinal))
	c.mu.Lock()
	c.finals = append(c.finals, transcript)
	c.mu.Unlock()
	return nil
}

func (c *collector) Metadata(md *msginterfaces.MetadataResponse) error {
	c.logger.Debug("deepgram_metadata_received",
		slog.String("request_id", md.RequestID))
	return nil
}

func (c *collector) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error {
	return nil
}

func (c *collector) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	return nil
}

func (c *collector) Close(cr *msginterfaces.CloseResponse) error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *collector) Error(er *msginterfaces.ErrorResponse) error {
	c.logger.Error("deepgram_error",
		slog.String("error_code", er.ErrCode),
		slog.String("error_message", er.ErrMsg))
	c.mu.Lock()
	c.err = fmt.Errorf("deepgram: %s: %s", er.ErrCode, er.ErrMsg)
	c.mu.Unlock()
	return nil
}

func (c *collector) UnhandledEvent(byData []byte) error {
	c.logger.Debug("deepgram_unhandled_event",
		slog.String("data", string(byData)))
	return nil
}
