package robin

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sproutbotics/robin/pkg/audio"
	"github.com/sproutbotics/robin/pkg/configutil"
	"github.com/sproutbotics/robin/pkg/display"
	"github.com/sproutbotics/robin/pkg/logging"
)

// Config is the full engine configuration. Every key has a default, so
// LoadConfig("") yields a runnable all-mock setup.
type Config struct {
	Environment   string              `mapstructure:"environment"`
	Logging       logging.Config      `mapstructure:"logging"`
	Audio         AudioConfig         `mapstructure:"audio"`
	Turn          TurnConfig          `mapstructure:"turn"`
	Display       display.Config      `mapstructure:"display"`
	Providers     ProvidersConfig     `mapstructure:"providers"`
	Conversation  ConversationConfig  `mapstructure:"conversation"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Privacy       PrivacyConfig       `mapstructure:"privacy"`
}

// ProviderConfig names one vendor and carries its free-form settings
// map. Settings are schema-checked and decoded by the provider factory.
type ProviderConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type ProvidersConfig struct {
	STT   ProviderConfig `mapstructure:"stt"`
	LLM   ProviderConfig `mapstructure:"llm"`
	TTS   ProviderConfig `mapstructure:"tts"`
	Audio ProviderConfig `mapstructure:"audio"`
}

type AudioConfig struct {
	SampleRate int `mapstructure:"sample_rate"`
	ChunkMS    int `mapstructure:"chunk_ms"`
}

type TurnConfig struct {
	SilenceThreshold  float64 `mapstructure:"silence_threshold"`
	SilenceDurationMS int     `mapstructure:"silence_duration_ms"`
	RequireSpeech     bool    `mapstructure:"require_speech"`
	StageTimeoutMS    int     `mapstructure:"stage_timeout_ms"`
}

// SilenceDetector translates the turn settings into detector form.
func (c TurnConfig) SilenceDetector() audio.SilenceDetectorConfig {
	return audio.SilenceDetectorConfig{
		Threshold:     c.SilenceThreshold,
		Duration:      time.Duration(c.SilenceDurationMS) * time.Millisecond,
		RequireSpeech: c.RequireSpeech,
	}
}

func (c TurnConfig) StageTimeout() time.Duration {
	return time.Duration(c.StageTimeoutMS) * time.Millisecond
}

type ConversationConfig struct {
	SystemPrompt string `mapstructure:"system_prompt"`
	MaxHistory   int    `mapstructure:"max_history"`
}

type ObservabilityConfig struct {
	ArtifactsDir  string  `mapstructure:"artifacts_dir"`
	RetentionDays int     `mapstructure:"retention_days"`
	SampleRate    float64 `mapstructure:"sample_rate"`
	EventBuffer   int     `mapstructure:"event_buffer"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

const defaultSystemPrompt = "You are a friendly, helpful school robot assistant. " +
	"You help students with their questions in a clear, educational, and engaging way. " +
	"Keep responses concise (2-3 sentences) and appropriate for a school environment. " +
	"Be encouraging and supportive."

// LoadConfig reads the optional YAML file at path on top of the
// defaults and applies ${ENV} expansion to every string, including the
// provider settings maps. An empty path loads pure defaults.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetDefault("environment", "development")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.chunk_ms", 100)
	v.SetDefault("turn.silence_threshold", 0.015)
	v.SetDefault("turn.silence_duration_ms", 2000)
	v.SetDefault("turn.require_speech", true)
	v.SetDefault("turn.stage_timeout_ms", 30000)
	v.SetDefault("display.addr", ":8000")
	v.SetDefault("display.ws_path", "/ws")
	v.SetDefault("display.allow_any_origin", false)
	v.SetDefault("display.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("display.send_buffer", 64)
	v.SetDefault("providers.stt.provider", "mock")
	v.SetDefault("providers.llm.provider", "mock")
	v.SetDefault("providers.tts.provider", "mock")
	v.SetDefault("providers.audio.provider", "mock")
	v.SetDefault("conversation.system_prompt", defaultSystemPrompt)
	v.SetDefault("conversation.max_history", 10)
	v.SetDefault("observability.artifacts_dir", "")
	v.SetDefault("observability.retention_days", 0)
	v.SetDefault("observability.sample_rate", 1.0)
	v.SetDefault("observability.event_buffer", 2048)
	v.SetDefault("privacy.redact_pii", true)

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandConfigEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that a provider is selected for every slot and the
// audio format is usable. Provider names are resolved against the
// registry when the engine is built.
func (c *Config) Validate() error {
	if err := configutil.RequireString(c.Providers.STT.Provider, "providers.stt.provider"); err != nil {
		return err
	}
	if err := configutil.RequireString(c.Providers.LLM.Provider, "providers.llm.provider"); err != nil {
		return err
	}
	if err := configutil.RequireString(c.Providers.TTS.Provider, "providers.tts.provider"); err != nil {
		return err
	}
	if err := configutil.RequireString(c.Providers.Audio.Provider, "providers.audio.provider"); err != nil {
		return err
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive")
	}
	if c.Turn.SilenceThreshold < 0 || c.Turn.SilenceThreshold > 1 {
		return fmt.Errorf("turn.silence_threshold must be within [0,1]")
	}
	return nil
}

// expandConfigEnv substitutes ${VAR} environment references in every
// string the config holds. Typed struct fields are rewritten in place;
// the free-form provider settings maps need a value walk because their
// contents are dynamically typed.
func expandConfigEnv(cfg *Config) {
	expandStrings(reflect.ValueOf(cfg))
	for _, slot := range []*ProviderConfig{
		&cfg.Providers.STT,
		&cfg.Providers.LLM,
		&cfg.Providers.TTS,
		&cfg.Providers.Audio,
	} {
		if slot.Settings != nil {
			slot.Settings = expandSetting(slot.Settings).(map[string]any)
		}
	}
}

func expandStrings(v reflect.Value) {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Struct:
		for i := range v.NumField() {
			expandStrings(v.Field(i))
		}
	case reflect.Slice, reflect.Array:
		for i := range v.Len() {
			expandStrings(v.Index(i))
		}
	case reflect.Map:
		if v.Type().Elem().Kind() != reflect.String {
			return
		}
		iter := v.MapRange()
		for iter.Next() {
			v.SetMapIndex(iter.Key(), reflect.ValueOf(os.ExpandEnv(iter.Value().String())))
		}
	}
}

// expandSetting rewrites the string leaves of a settings value. YAML
// decoding can surface nested blocks as map[any]any, so those are
// normalized to string keys on the way through.
func expandSetting(v any) any {
	switch node := v.(type) {
	case string:
		return os.ExpandEnv(node)
	case []any:
		for i, item := range node {
			node[i] = expandSetting(item)
		}
		return node
	case map[string]any:
		for key, item := range node {
			node[key] = expandSetting(item)
		}
		return node
	case map[any]any:
		norm := make(map[string]any, len(node))
		for key, item := range node {
			if s, ok := key.(string); ok {
				norm[s] = expandSetting(item)
			}
		}
		return norm
	}
	return v
}
