package upload

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Probe inspects a decoded response and reports a file reference if it
// recognises the shape.
type Probe func(data any) (string, bool)

// Extractor tries probes in order; the first match wins.
type Extractor []Probe

// DefaultExtractor probes, in order: the body itself as a string, file_id,
// audio_file, document, id, url, path. The order is empirical and may need
// adjusting for other backends.
func DefaultExtractor() Extractor {
	return Extractor{
		BodyString(),
		StringField("file_id"),
		StringField("audio_file"),
		StringField("document"),
		IDField("id"),
		StringField("url"),
		StringField("path"),
	}
}

func (e Extractor) Extract(data any) (string, bool) {
	for _, probe := range e {
		if probe == nil {
			continue
		}
		if ref, ok := probe(data); ok {
			return ref, true
		}
	}
	return "", false
}

// BodyString matches a response that is itself a non-blank string.
func BodyString() Probe {
	return func(data any) (string, bool) {
		s, ok := data.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return "", false
		}
		return strings.TrimSpace(s), true
	}
}

// StringField matches a top-level field holding a non-blank string.
func StringField(name string) Probe {
	return func(data any) (string, bool) {
		obj, ok := data.(map[string]any)
		if !ok {
			return "", false
		}
		s, ok := obj[name].(string)
		if !ok || strings.TrimSpace(s) == "" {
			return "", false
		}
		return s, true
	}
}

// IDField matches a top-level numeric or string identifier and stringifies it.
func IDField(name string) Probe {
	return func(data any) (string, bool) {
		obj, ok := data.(map[string]any)
		if !ok {
			return "", false
		}
		switch v := obj[name].(type) {
		case string:
			if strings.TrimSpace(v) == "" {
				return "", false
			}
			return v, true
		case json.Number:
			return v.String(), true
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), true
		case int:
			return strconv.Itoa(v), true
		case int64:
			return strconv.FormatInt(v, 10), true
		default:
			return "", false
		}
	}
}
