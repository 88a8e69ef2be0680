package deepgram

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
)

func message(t *testing.T, raw string) *msginterfaces.MessageResponse {
	t.Helper()
	var mr msginterfaces.MessageResponse
	if err := json.Unmarshal([]byte(raw), &mr); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	return &mr
}

func TestCollectorJoinsFinalTranscripts(t *testing.T) {
	col := newCollector(slog.Default())

	col.Message(message(t, `{"is_final":true,"channel":{"alternatives":[{"transcript":"what is"}]}}`))
	col.Message(message(t, `{"is_final":false,"channel":{"alternatives":[{"transcript":"interim noise"}]}}`))
	col.Message(message(t, `{"speech_final":true,"channel":{"alternatives":[{"transcript":"photosynthesis"}]}}`))

	if got := col.transcript(); got != "what is photosynthesis" {
		t.Fatalf("transcript = %q", got)
	}
}

func TestCollectorSkipsEmptyAlternatives(t *testing.T) {
	col := newCollector(slog.Default())

	col.Message(message(t, `{"is_final":true,"channel":{"alternatives":[]}}`))
	col.Message(message(t, `{"is_final":true,"channel":{"alternatives":[{"transcript":""}]}}`))

	if got := col.transcript(); got != "" {
		t.Fatalf("transcript = %q, want empty", got)
	}
}

func TestCollectorCloseSignalsOnce(t *testing.T) {
	col := newCollector(slog.Default())

	col.Close(&msginterfaces.CloseResponse{})
	col.Close(&msginterfaces.CloseResponse{})

	select {
	case <-col.closed:
	default:
		t.Fatal("closed channel not signalled")
	}
}

func TestCollectorRecordsError(t *testing.T) {
	col := newCollector(slog.Default())

	col.Error(&msginterfaces.ErrorResponse{ErrCode: "1011", ErrMsg: "timeout"})

	err := col.lastError()
	if err == nil {
		t.Fatal("expected recorded error")
	}
	if got := err.Error(); got != "deepgram: 1011: timeout" {
		t.Fatalf("error = %q", got)
	}
}

func TestTranscribeEmptyAudio(t *testing.T) {
	tr := New(Config{APIKey: "key"})
	if _, err := tr.Transcribe(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty audio")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.Model != "nova-2" {
		t.Fatalf("model = %q", cfg.Model)
	}
	if cfg.Encoding != "linear16" {
		t.Fatalf("encoding = %q", cfg.Encoding)
	}
	if cfg.SampleRate != 16000 {
		t.Fatalf("sample rate = %d", cfg.SampleRate)
	}
}
