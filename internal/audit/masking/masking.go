// Package masking redacts payment provider identifiers before they are
// stored in audit metadata.
package masking

import "strings"

const (
	maskToken   = "****"
	visibleTail = 4
)

// MaskSecret keeps a provider prefix and the last few characters, so
// cus_ABC123xyz becomes cus_****3xyz.
func MaskSecret(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	prefix, rest := providerPrefix(value)
	if len(rest) <= visibleTail {
		return prefix + maskToken
	}
	return prefix + maskToken + rest[len(rest)-visibleTail:]
}

// Masker redacts a fixed set of metadata keys at any depth.
type Masker struct {
	keys map[string]struct{}
}

func NewMasker(keys ...string) Masker {
	set := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if key = strings.TrimSpace(key); key != "" {
			set[key] = struct{}{}
		}
	}
	return Masker{keys: set}
}

// Apply returns a masked copy of input. Blank keys are dropped and an empty
// result is nil.
func (m Masker) Apply(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, sensitive := m.keys[key]; sensitive {
			out[key] = maskValue(value)
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			out[key] = m.Apply(nested)
			continue
		}
		out[key] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// MaskFields is a one-off Apply.
func MaskFields(input map[string]any, keys ...string) map[string]any {
	return NewMasker(keys...).Apply(input)
}

func maskValue(value any) any {
	switch v := value.(type) {
	case string:
		return MaskSecret(v)
	case *string:
		if v == nil {
			return nil
		}
		return MaskSecret(*v)
	case []string:
		out := make([]string, len(v))
		for i, item := range v {
			out[i] = MaskSecret(item)
		}
		return out
	default:
		return value
	}
}

// providerPrefix splits Stripe style ids such as sub_123 at the first
// underscore.
func providerPrefix(value string) (string, string) {
	prefix, rest, found := strings.Cut(value, "_")
	if !found || rest == "" {
		return "", value
	}
	return prefix + "_", rest
}
