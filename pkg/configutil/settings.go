package configutil

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// DecodeSettings maps a provider's free-form settings block onto its
// typed config struct. Matching is forgiving the way yaml authors
// expect: keys are case, underscore, and hyphen insensitive, and
// scalar types coerce weakly ("true" becomes a bool, "50" an int).
func DecodeSettings(input map[string]any, out any) error {
	if len(input) == 0 {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		MatchName: func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		},
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}
	return nil
}

// RequireString rejects empty required config values, naming the yaml
// path in the error.
func RequireString(value, path string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s must be set", path)
	}
	return nil
}

var keyFolder = strings.NewReplacer("_", "", "-", "")

func normalizeKey(key string) string {
	return strings.ToLower(keyFolder.Replace(key))
}
