package robin

import (
	"context"
	"strings"
	"testing"

	"github.com/sproutbotics/robin/pkg/adapters/stt"
	"github.com/sproutbotics/robin/pkg/llm"
	"github.com/sproutbotics/robin/pkg/providers/mock"
)

func defaultsConfig(t *testing.T) Config {
	t.Helper()
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	return cfg
}

func TestDefaultRegistryBuildsMocks(t *testing.T) {
	cfg := defaultsConfig(t)
	r := DefaultRegistry()

	transcriber, err := r.BuildSTT("mock", cfg)
	if err != nil {
		t.Fatalf("BuildSTT: %v", err)
	}
	if transcriber.Name() != "mock_stt" {
		t.Fatalf("stt name = %q", transcriber.Name())
	}

	responder, err := r.BuildLLM("mock", cfg)
	if err != nil {
		t.Fatalf("BuildLLM: %v", err)
	}
	if responder.Name() != "mock_llm" {
		t.Fatalf("llm name = %q", responder.Name())
	}

	synth, err := r.BuildTTS("mock", cfg)
	if err != nil {
		t.Fatalf("BuildTTS: %v", err)
	}
	if synth.Name() != "mock_tts" {
		t.Fatalf("tts name = %q", synth.Name())
	}

	devices, err := r.BuildAudio("mock", cfg)
	if err != nil {
		t.Fatalf("BuildAudio: %v", err)
	}
	if devices.Capture == nil || devices.Player == nil {
		t.Fatalf("devices = %+v", devices)
	}
	if devices.Close != nil {
		t.Fatalf("mock audio should not hold hardware")
	}
}

func TestBuildRejectsUnregisteredProvider(t *testing.T) {
	cfg := defaultsConfig(t)
	r := DefaultRegistry()
	if _, err := r.BuildSTT("carrier_pigeon", cfg); err == nil || !strings.Contains(err.Error(), "not registered") {
		t.Fatalf("err = %v", err)
	}
	if _, err := r.BuildAudio("tape_deck", cfg); err == nil || !strings.Contains(err.Error(), "not registered") {
		t.Fatalf("err = %v", err)
	}
}

func TestWhisperFactoryValidatesSettings(t *testing.T) {
	cfg := defaultsConfig(t)
	cfg.Providers.STT.Provider = "whisper"
	r := DefaultRegistry()

	if _, err := r.BuildSTT("whisper", cfg); err == nil || !strings.Contains(err.Error(), "api_key") {
		t.Fatalf("missing key: err = %v", err)
	}

	cfg.Providers.STT.Settings = map[string]any{"api_key": "sk-test", "bogus": true}
	if _, err := r.BuildSTT("whisper", cfg); err == nil || !strings.Contains(err.Error(), "unknown") {
		t.Fatalf("unknown key: err = %v", err)
	}

	cfg.Providers.STT.Settings = map[string]any{"api_key": "sk-test", "language": "en"}
	transcriber, err := r.BuildSTT("whisper", cfg)
	if err != nil {
		t.Fatalf("BuildSTT: %v", err)
	}
	if transcriber.Name() != "whisper" {
		t.Fatalf("name = %q", transcriber.Name())
	}
}

func TestRealProviderFactories(t *testing.T) {
	cfg := defaultsConfig(t)
	r := DefaultRegistry()

	cfg.Providers.STT.Settings = map[string]any{"api_key": "dg-test"}
	transcriber, err := r.BuildSTT("deepgram", cfg)
	if err != nil {
		t.Fatalf("deepgram: %v", err)
	}
	if transcriber.Name() != "deepgram" {
		t.Fatalf("name = %q", transcriber.Name())
	}

	cfg.Providers.LLM.Settings = map[string]any{"api_key": "or-test", "max_tokens": 256}
	responder, err := r.BuildLLM("openrouter", cfg)
	if err != nil {
		t.Fatalf("openrouter: %v", err)
	}
	if responder.Name() != "openrouter" {
		t.Fatalf("name = %q", responder.Name())
	}
	if _, ok := responder.(*llm.CircuitBreakerResponder); !ok {
		t.Fatalf("openrouter should sit behind a circuit breaker")
	}

	cfg.Providers.TTS.Settings = map[string]any{"api_key": "el-test", "voice": "rachel"}
	synth, err := r.BuildTTS("elevenlabs", cfg)
	if err != nil {
		t.Fatalf("elevenlabs: %v", err)
	}
	if synth.Name() != "elevenlabs" {
		t.Fatalf("name = %q", synth.Name())
	}
}

func TestMockSettingsDecodeWeaklyTyped(t *testing.T) {
	cfg := defaultsConfig(t)
	// String "true" must coerce to bool through the weak decode.
	cfg.Providers.LLM.Settings = map[string]any{"echo_user": "true"}
	r := DefaultRegistry()

	responder, err := r.BuildLLM("mock", cfg)
	if err != nil {
		t.Fatalf("BuildLLM: %v", err)
	}
	resp, err := responder.Respond(context.Background(), []llm.Message{
		{Role: llm.RoleUser, Content: "hello robin"},
	})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if resp.Text != "You said: hello robin" {
		t.Fatalf("reply = %q", resp.Text)
	}
}

func TestRegisterCustomProvider(t *testing.T) {
	cfg := defaultsConfig(t)
	r := NewProviderRegistry()
	r.RegisterSTT("Canned", func(Config) (stt.Transcriber, error) {
		return mock.NewTranscriber(mock.STTConfig{Transcript: "carrots"}), nil
	})

	transcriber, err := r.BuildSTT("canned", cfg)
	if err != nil {
		t.Fatalf("BuildSTT: %v", err)
	}
	text, err := transcriber.Transcribe(context.Background(), []byte{0, 0})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "carrots" {
		t.Fatalf("transcript = %q", text)
	}
}
