// Package object defines the Info record that identifies a single node in
// the result graph, plus the Metadata extension bag attached to nodes and
// relations and its sanitization rules.
package object

import (
	"strings"

	"go.uber.org/zap"
)

// Metadata is the open, recursive extension bag attached to both object and
// relation records. Keys must match [A-Za-z0-9_-]+; see SanitizeKeys.
type Metadata map[string]any

// Reserved metadata keys used by the encryption-retry loop and origin
// tracking. Not enforced structurally — just named here so every reader of
// this package sees the whole reserved vocabulary in one place.
const (
	KeyGlobal         = "_global"
	KeyOrigin         = "_origin"
	KeyReprocessable  = "_reprocessable"
	KeyMsgSubstream   = "_msg_substream"
	KeyPossiblePasswd = "possible_passwords"
	KeyPassword       = "password"
)

// SanitizeKeys rewrites any metadata key containing a space or a control
// character (C0 or DEL), replacing every character outside [A-Za-z0-9_-]
// with an underscore. If the sanitized form already exists as a key, the
// original (unsanitized) key is kept and the collision is logged — the sanitized write is dropped,
// never the reverse. Recurses into nested object values only; array
// elements are not visited. NUL replacement, by contrast, does walk
// arrays (see internal/graph).
func SanitizeKeys(meta Metadata, log *zap.Logger) {
	var badKeys []string
	for k := range meta {
		if needsSanitization(k) {
			badKeys = append(badKeys, k)
		}
	}
	for _, key := range badKeys {
		value := meta[key]
		delete(meta, key)
		sanitized := sanitizeKey(key)
		if _, exists := meta[sanitized]; exists {
			if log != nil {
				log.Warn("cannot sanitize metadata key because duplicate exists",
					zap.String("key", key), zap.String("sanitized", sanitized))
			}
			meta[key] = value
			continue
		}
		if log != nil {
			log.Warn("sanitized metadata key", zap.String("key", key), zap.String("sanitized", sanitized))
		}
		meta[sanitized] = value
	}
	for _, v := range meta {
		if sub, ok := v.(Metadata); ok {
			SanitizeKeys(sub, log)
			continue
		}
		if sub, ok := v.(map[string]any); ok {
			SanitizeKeys(Metadata(sub), log)
		}
	}
}

// needsSanitization reports whether k contains a space or a control
// character and therefore must be rewritten by sanitizeKey.
func needsSanitization(k string) bool {
	for _, r := range k {
		if r == ' ' || (r < 0x20) || r == 0x7f {
			return true
		}
	}
	return false
}

func sanitizeKey(k string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, k)
}
