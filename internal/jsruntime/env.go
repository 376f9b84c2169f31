package jsruntime

import "strings"

// envAllow is the static allow-list from the design Environment
// filtering rule. EnvAllowed upper-cases a key before looking it up, so
// matching is case-insensitive; the PI_ prefix rule is handled separately
// in EnvAllowed.
var envAllow = map[string]bool{
	"PATH":       true,
	"HOME":       true,
	"USER":       true,
	"SHELL":      true,
	"TERM":       true,
	"LANG":       true,
	"EDITOR":     true,
	"AWS_REGION": true,
}

// envDenyPatterns is the substring deny list; a key matching any of these
// is hidden from process.env unless it is also on the explicit allow
// list (allow beats deny only for explicitly listed safe keys).
var envDenyPatterns = []string{
	"SECRET",
	"PASSWORD",
	"PASSWD",
	"PRIVATE_KEY",
	"API_KEY",
	"CREDENTIAL",
	"TOKEN",
	"AWS_SECRET_ACCESS_KEY",
	"AWS_SESSION_TOKEN",
	"OPENAI_API_KEY",
	"ANTHROPIC_API_KEY",
	"GEMINI_API_KEY",
}

// EnvAllowed reports whether key may be exposed through process.env. The
// explicit allow-list overrides a deny match; the PI_ prefix group does
// not, so a PI_-prefixed key still has to clear the deny patterns, and
// PI_API_KEY or PI_TOKEN stay hidden even though PI_MODE is exposed.
func EnvAllowed(key string) bool {
	upper := strings.ToUpper(key)
	if envAllow[upper] {
		return true
	}
	for _, pattern := range envDenyPatterns {
		if strings.Contains(upper, pattern) {
			return false
		}
	}
	return strings.HasPrefix(upper, "PI_")
}

// FilterEnv returns the subset of the given environment (as produced by
// os.Environ-style "KEY=VALUE" pairs) that process.env may expose.
func FilterEnv(environ []string) map[string]string {
	out := map[string]string{}
	for _, kv := range environ {
		idx := strings.IndexByte(kv, '=')
		if idx < 0 {
			continue
		}
		key, val := kv[:idx], kv[idx+1:]
		if EnvAllowed(key) {
			out[key] = val
		}
	}
	return out
}
