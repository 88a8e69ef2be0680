package configutil

import (
	"fmt"
	"slices"
	"strings"
)

// Schema names the keys a provider accepts in its settings block.
type Schema struct {
	Required     []string
	Optional     []string
	AllowUnknown bool
}

// ValidateSettings checks a settings map against the schema before
// decoding. Key comparison is case, underscore, and hyphen insensitive.
// Required keys must be present with a non-blank value; keys outside
// the schema are rejected unless AllowUnknown is set.
func ValidateSettings(input map[string]any, schema Schema) error {
	allowed := make(map[string]struct{}, len(schema.Required)+len(schema.Optional))
	for _, k := range slices.Concat(schema.Required, schema.Optional) {
		allowed[normalizeKey(k)] = struct{}{}
	}

	present := make(map[string]bool, len(input))
	var unknown []string
	for k, v := range input {
		nk := normalizeKey(k)
		present[nk] = present[nk] || !blank(v)
		if _, ok := allowed[nk]; !ok && !schema.AllowUnknown {
			unknown = append(unknown, k)
		}
	}

	var missing []string
	for _, k := range schema.Required {
		if !present[normalizeKey(k)] {
			missing = append(missing, k)
		}
	}

	if len(missing) == 0 && len(unknown) == 0 {
		return nil
	}
	slices.Sort(missing)
	slices.Sort(unknown)
	msg := ""
	if len(missing) > 0 {
		msg = "missing: " + strings.Join(missing, ", ")
	}
	if len(unknown) > 0 {
		if msg != "" {
			msg += "; "
		}
		msg += "unknown: " + strings.Join(unknown, ", ")
	}
	return fmt.Errorf("settings: %s", msg)
}

func blank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}
