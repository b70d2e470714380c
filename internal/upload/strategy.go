package upload

import (
	"strings"
)

// Strategy is the wire encoding chosen for one file.
type Strategy int

const (
	// StrategyJSON embeds the file as base64 inside a JSON body.
	StrategyJSON Strategy = iota
	// StrategyMultipart streams the file as multipart/form-data.
	StrategyMultipart
)

func (s Strategy) String() string {
	switch s {
	case StrategyMultipart:
		return "multipart"
	default:
		return "json"
	}
}

// StrategyPolicy picks the streamable binary family. Files outside it are
// sent as encoded JSON.
type StrategyPolicy struct {
	// BinaryMIMEPrefixes match the declared MIME type, e.g. "audio/".
	BinaryMIMEPrefixes []string
	// BinaryExtensions match the lower-cased file extension, e.g. ".mp3".
	BinaryExtensions []string
}

// DefaultPolicy routes audio recordings through multipart.
func DefaultPolicy() StrategyPolicy {
	return StrategyPolicy{
		BinaryMIMEPrefixes: []string{"audio/"},
		BinaryExtensions:   []string{".mp3", ".wav", ".ogg", ".oga", ".m4a", ".aac", ".flac", ".opus", ".weba", ".amr"},
	}
}

func (p StrategyPolicy) isZero() bool {
	return len(p.BinaryMIMEPrefixes) == 0 && len(p.BinaryExtensions) == 0
}

// Select is a pure function of the file identity. Metadata never influences it.
func (p StrategyPolicy) Select(name, contentType string, forceJSON bool) Strategy {
	if forceJSON {
		return StrategyJSON
	}
	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}
	for _, prefix := range p.BinaryMIMEPrefixes {
		prefix = strings.ToLower(strings.TrimSpace(prefix))
		if prefix != "" && strings.HasPrefix(mediaType, prefix) {
			return StrategyMultipart
		}
	}
	ext := File{Name: name}.Ext()
	if ext == "" {
		return StrategyJSON
	}
	for _, allowed := range p.BinaryExtensions {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if !strings.HasPrefix(allowed, ".") {
			allowed = "." + allowed
		}
		if ext == allowed {
			return StrategyMultipart
		}
	}
	return StrategyJSON
}
