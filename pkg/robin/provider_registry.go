package robin

import (
	"fmt"
	"strings"

	"github.com/sproutbotics/robin/pkg/adapters/stt"
	"github.com/sproutbotics/robin/pkg/adapters/tts"
	"github.com/sproutbotics/robin/pkg/audio"
	"github.com/sproutbotics/robin/pkg/configutil"
	"github.com/sproutbotics/robin/pkg/llm"
	"github.com/sproutbotics/robin/pkg/providers/deepgram"
	"github.com/sproutbotics/robin/pkg/providers/elevenlabs"
	"github.com/sproutbotics/robin/pkg/providers/mic"
	"github.com/sproutbotics/robin/pkg/providers/mock"
	"github.com/sproutbotics/robin/pkg/providers/openrouter"
	"github.com/sproutbotics/robin/pkg/providers/whisper"
)

type STTFactory func(cfg Config) (stt.Transcriber, error)
type LLMFactory func(cfg Config) (llm.Responder, error)
type TTSFactory func(cfg Config) (tts.Synthesizer, error)
type AudioFactory func(cfg Config) (AudioDevices, error)

// AudioDevices bundles the capture and playback sides of one audio
// provider. Close releases the underlying hardware; nil when the
// provider holds none.
type AudioDevices struct {
	Capture audio.Capture
	Player  audio.Player
	Close   func() error
}

// ProviderRegistry maps provider names from configuration to factories.
// Register custom providers before handing the registry to NewEngine.
type ProviderRegistry struct {
	stt   map[string]STTFactory
	llm   map[string]LLMFactory
	tts   map[string]TTSFactory
	audio map[string]AudioFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		stt:   make(map[string]STTFactory),
		llm:   make(map[string]LLMFactory),
		tts:   make(map[string]TTSFactory),
		audio: make(map[string]AudioFactory),
	}
}

// DefaultRegistry returns a registry with every built-in provider
// registered.
func DefaultRegistry() *ProviderRegistry {
	r := NewProviderRegistry()
	r.RegisterSTT("mock", buildMockSTT)
	r.RegisterSTT("whisper", buildWhisperSTT)
	r.RegisterSTT("deepgram", buildDeepgramSTT)
	r.RegisterLLM("mock", buildMockLLM)
	r.RegisterLLM("openrouter", buildOpenRouterLLM)
	r.RegisterTTS("mock", buildMockTTS)
	r.RegisterTTS("elevenlabs", buildElevenLabsTTS)
	r.RegisterAudio("mock", buildMockAudio)
	r.RegisterAudio("mic", buildMicAudio)
	return r
}

func (r *ProviderRegistry) RegisterSTT(name string, factory STTFactory) {
	r.stt[strings.ToLower(strings.TrimSpace(name))] = factory
}

func (r *ProviderRegistry) RegisterLLM(name string, factory LLMFactory) {
	r.llm[strings.ToLower(strings.TrimSpace(name))] = factory
}

func (r *ProviderRegistry) RegisterTTS(name string, factory TTSFactory) {
	r.tts[strings.ToLower(strings.TrimSpace(name))] = factory
}

func (r *ProviderRegistry) RegisterAudio(name string, factory AudioFactory) {
	r.audio[strings.ToLower(strings.TrimSpace(name))] = factory
}

func (r *ProviderRegistry) BuildSTT(provider string, cfg Config) (stt.Transcriber, error) {
	fn := r.stt[strings.ToLower(strings.TrimSpace(provider))]
	if fn == nil {
		return nil, fmt.Errorf("stt provider not registered: %s", provider)
	}
	return fn(cfg)
}

func (r *ProviderRegistry) BuildLLM(provider string, cfg Config) (llm.Responder, error) {
	fn := r.llm[strings.ToLower(strings.TrimSpace(provider))]
	if fn == nil {
		return nil, fmt.Errorf("llm provider not registered: %s", provider)
	}
	return fn(cfg)
}

func (r *ProviderRegistry) BuildTTS(provider string, cfg Config) (tts.Synthesizer, error) {
	fn := r.tts[strings.ToLower(strings.TrimSpace(provider))]
	if fn == nil {
		return nil, fmt.Errorf("tts provider not registered: %s", provider)
	}
	return fn(cfg)
}

func (r *ProviderRegistry) BuildAudio(provider string, cfg Config) (AudioDevices, error) {
	fn := r.audio[strings.ToLower(strings.TrimSpace(provider))]
	if fn == nil {
		return AudioDevices{}, fmt.Errorf("audio provider not registered: %s", provider)
	}
	return fn(cfg)
}

var (
	whisperSchema = configutil.Schema{
		Required: []string{"api_key"},
		Optional: []string{"model", "base_url", "language", "sample_rate", "channels", "max_retries"},
	}
	deepgramSchema = configutil.Schema{
		Required: []string{"api_key"},
		Optional: []string{"model", "language", "encoding", "sample_rate"},
	}
	openrouterSchema = configutil.Schema{
		Required: []string{"api_key"},
		Optional: []string{"model", "base_url", "max_tokens", "temperature", "referer", "title"},
	}
	elevenlabsSchema = configutil.Schema{
		Required: []string{"api_key"},
		Optional: []string{"voice", "model_id", "base_url", "output_format", "sample_rate", "max_retries"},
	}
	mockSTTSchema   = configutil.Schema{Optional: []string{"transcript"}}
	mockLLMSchema   = configutil.Schema{Optional: []string{"reply", "echo_user"}}
	mockTTSSchema   = configutil.Schema{Optional: []string{"ms_per_char"}}
	mockAudioSchema = configutil.Schema{Optional: []string{"realtime", "script"}}
	micSchema       = configutil.Schema{Optional: []string{"channels"}}
)

func buildWhisperSTT(cfg Config) (stt.Transcriber, error) {
	var pc whisper.Config
	if err := decodeProvider("whisper", cfg.Providers.STT, whisperSchema, &pc); err != nil {
		return nil, err
	}
	if pc.SampleRate <= 0 {
		pc.SampleRate = cfg.Audio.SampleRate
	}
	return whisper.New(pc), nil
}

func buildDeepgramSTT(cfg Config) (stt.Transcriber, error) {
	var pc deepgram.Config
	if err := decodeProvider("deepgram", cfg.Providers.STT, deepgramSchema, &pc); err != nil {
		return nil, err
	}
	if pc.SampleRate <= 0 {
		pc.SampleRate = cfg.Audio.SampleRate
	}
	return deepgram.New(pc), nil
}

func buildMockSTT(cfg Config) (stt.Transcriber, error) {
	var pc mock.STTConfig
	if err := decodeProvider("mock stt", cfg.Providers.STT, mockSTTSchema, &pc); err != nil {
		return nil, err
	}
	return mock.NewTranscriber(pc), nil
}

// buildOpenRouterLLM wraps the responder in a circuit breaker; repeated
// rate limiting opens it instead of hammering the API every turn.
func buildOpenRouterLLM(cfg Config) (llm.Responder, error) {
	var pc openrouter.Config
	if err := decodeProvider("openrouter", cfg.Providers.LLM, openrouterSchema, &pc); err != nil {
		return nil, err
	}
	return llm.NewCircuitBreakerResponder(openrouter.New(pc), nil), nil
}

func buildMockLLM(cfg Config) (llm.Responder, error) {
	var pc mock.LLMConfig
	if err := decodeProvider("mock llm", cfg.Providers.LLM, mockLLMSchema, &pc); err != nil {
		return nil, err
	}
	return mock.NewResponder(pc), nil
}

func buildElevenLabsTTS(cfg Config) (tts.Synthesizer, error) {
	var pc elevenlabs.Config
	if err := decodeProvider("elevenlabs", cfg.Providers.TTS, elevenlabsSchema, &pc); err != nil {
		return nil, err
	}
	if pc.SampleRate <= 0 {
		pc.SampleRate = cfg.Audio.SampleRate
	}
	return elevenlabs.New(pc), nil
}

func buildMockTTS(cfg Config) (tts.Synthesizer, error) {
	var pc mock.TTSConfig
	if err := decodeProvider("mock tts", cfg.Providers.TTS, mockTTSSchema, &pc); err != nil {
		return nil, err
	}
	pc.SampleRate = cfg.Audio.SampleRate
	return mock.NewSynthesizer(pc), nil
}

func buildMicAudio(cfg Config) (AudioDevices, error) {
	var pc mic.Config
	if err := decodeProvider("mic", cfg.Providers.Audio, micSchema, &pc); err != nil {
		return AudioDevices{}, err
	}
	pc.SampleRate = cfg.Audio.SampleRate
	pc.ChunkMS = cfg.Audio.ChunkMS
	dev, err := mic.Open(pc)
	if err != nil {
		return AudioDevices{}, err
	}
	return AudioDevices{Capture: dev.Capture(), Player: dev.Player(), Close: dev.Close}, nil
}

func buildMockAudio(cfg Config) (AudioDevices, error) {
	var cc mock.CaptureConfig
	if err := decodeProvider("mock audio", cfg.Providers.Audio, mockAudioSchema, &cc); err != nil {
		return AudioDevices{}, err
	}
	var pc mock.PlayerConfig
	if err := configutil.DecodeSettings(cfg.Providers.Audio.Settings, &pc); err != nil {
		return AudioDevices{}, fmt.Errorf("mock audio settings: %w", err)
	}
	cc.SampleRate = cfg.Audio.SampleRate
	cc.ChunkMS = cfg.Audio.ChunkMS
	pc.SampleRate = cfg.Audio.SampleRate
	return AudioDevices{Capture: mock.NewCapture(cc), Player: mock.NewPlayer(pc)}, nil
}

// decodeProvider validates a settings map against the provider's schema
// and decodes it into the provider config struct.
func decodeProvider(name string, pc ProviderConfig, schema configutil.Schema, out any) error {
	if err := configutil.ValidateSettings(pc.Settings, schema); err != nil {
		return fmt.Errorf("%s settings: %w", name, err)
	}
	if err := configutil.DecodeSettings(pc.Settings, out); err != nil {
		return fmt.Errorf("%s settings: %w", name, err)
	}
	return nil
}
