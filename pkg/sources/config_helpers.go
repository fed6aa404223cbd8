package sources

import "strings"

// Option keys shared across adapters.
const (
	ConfigURLKey            = "url"
	ConfigFetchIntervalKey  = "fetch_interval"
	ConfigTimeoutKey        = "timeout"
	ConfigUserAgentKey      = "user_agent"
	ConfigAcceptKey         = "accept"
	ConfigAcceptLanguageKey = "accept_language"
)

// OptionString returns the trimmed string value for key from opts or a fallback.
func OptionString(opts map[string]any, key, fallback string) string {
	if opts != nil {
		if raw, ok := opts[key]; ok {
			if val, ok := raw.(string); ok {
				if trimmed := strings.TrimSpace(val); trimmed != "" {
					return trimmed
				}
			}
		}
	}
	return fallback
}

// OptionInt returns the integer value for key, tolerating the numeric types
// YAML and JSON decoding produce.
func OptionInt(opts map[string]any, key string, fallback int) int {
	if opts == nil {
		return fallback
	}
	switch v := opts[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

// OptionStringSlice returns the string list for key; scalar strings are
// treated as a single-element list.
func OptionStringSlice(opts map[string]any, key string) []string {
	if opts == nil {
		return nil
	}
	switch v := opts[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, raw := range v {
			if s, ok := raw.(string); ok {
				if trimmed := strings.TrimSpace(s); trimmed != "" {
					out = append(out, trimmed)
				}
			}
		}
		return out
	case string:
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return []string{trimmed}
		}
		return nil
	default:
		return nil
	}
}

// OptionHeaders builds the common request headers from adapter options
// (skips empty values).
func OptionHeaders(opts map[string]any) map[string]string {
	headers := make(map[string]string, 3)

	if v := OptionString(opts, ConfigUserAgentKey, ""); v != "" {
		headers["User-Agent"] = v
	}
	if v := OptionString(opts, ConfigAcceptKey, ""); v != "" {
		headers["Accept"] = v
	}
	if v := OptionString(opts, ConfigAcceptLanguageKey, ""); v != "" {
		headers["Accept-Language"] = v
	}

	return headers
}

// isHTTPURL reports whether raw looks like an absolute http(s) URL.
func isHTTPURL(raw string) bool {
	return strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://")
}
