package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sproutbotics/robin/pkg/llm"
)

func TestTranscriberReturnsTranscript(t *testing.T) {
	tr := NewTranscriber(STTConfig{Transcript: "hello robin"})
	text, err := tr.Transcribe(context.Background(), []byte{0x00})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "hello robin" {
		t.Fatalf("text = %q", text)
	}
}

func TestTranscriberHonorsCancel(t *testing.T) {
	tr := NewTranscriber(STTConfig{Delay: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tr.Transcribe(ctx, []byte{0x00}); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestResponderEchoesUser(t *testing.T) {
	r := NewResponder(LLMConfig{EchoUser: true})
	resp, err := r.Respond(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "be helpful"},
		{Role: llm.RoleUser, Content: "what is gravity"},
	})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if resp.Text != "You said: what is gravity" {
		t.Fatalf("text = %q", resp.Text)
	}
}

func TestResponderFixedReplyAndError(t *testing.T) {
	r := NewResponder(LLMConfig{Reply: "forty two"})
	resp, err := r.Respond(context.Background(), nil)
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if resp.Text != "forty two" {
		t.Fatalf("text = %q", resp.Text)
	}

	boom := errors.New("boom")
	r = NewResponder(LLMConfig{Err: boom})
	if _, err := r.Respond(context.Background(), nil); !errors.Is(err, boom) {
		t.Fatalf("error = %v, want boom", err)
	}
}

func TestSynthesizerSizesAudioByText(t *testing.T) {
	s := NewSynthesizer(TTSConfig{SampleRate: 16000, MSPerChar: 50})
	short, err := s.Synthesize(context.Background(), "hi")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	long, err := s.Synthesize(context.Background(), "hello there")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(long) <= len(short) {
		t.Fatalf("long reply audio (%d) not larger than short (%d)", len(long), len(short))
	}
	if len(short) != 16000*50*2/1000*2 {
		t.Fatalf("short audio = %d bytes", len(short))
	}
}

func TestCaptureScriptDrivesSamplesAndBuffer(t *testing.T) {
	c := NewCapture(CaptureConfig{SampleRate: 16000, ChunkMS: 10, Script: []float64{0.5, 0.5}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	samples := c.Samples()

	first := <-samples
	if first.Energy != 0.5 {
		t.Fatalf("first energy = %f", first.Energy)
	}
	<-samples
	third := <-samples
	if third.Energy != 0 {
		t.Fatalf("post-script energy = %f, want silence", third.Energy)
	}

	pcm, err := c.Stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(pcm) < 3*c.chunkBytes {
		t.Fatalf("buffered %d bytes, want at least %d", len(pcm), 3*c.chunkBytes)
	}
}

func TestCaptureStopClosesSamples(t *testing.T) {
	c := NewCapture(CaptureConfig{ChunkMS: 10})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	samples := c.Samples()
	if _, err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-samples:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("samples channel never closed")
		}
	}
}

func TestCaptureRestartAfterStop(t *testing.T) {
	c := NewCapture(CaptureConfig{ChunkMS: 10})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if _, err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if _, err := c.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestPlayerRealtimeAndCancel(t *testing.T) {
	p := NewPlayer(PlayerConfig{SampleRate: 16000, Realtime: true})
	pcm := make([]byte, 16000*2/10)

	start := time.Now()
	if err := p.Play(context.Background(), pcm); err != nil {
		t.Fatalf("play: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Fatalf("realtime playback returned after %v", elapsed)
	}
	if len(p.Played()) != 1 {
		t.Fatalf("played %d buffers", len(p.Played()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Play(ctx, make([]byte, 16000*2)); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}
