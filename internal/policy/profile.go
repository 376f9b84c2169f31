package policy

import "github.com/pi-cli/pi/internal/capability"

// Profile is a named preset that yields a concrete Config.
type Profile string

const (
	ProfileSafe       Profile = "safe"
	ProfileStandard   Profile = "standard"
	ProfilePermissive Profile = "permissive"
)

// ExtensionPolicyConfig is the external configuration shape for: a
// profile name plus the allow_dangerous escape hatch. Unknown profile
// names fall back to "standard".
type ExtensionPolicyConfig struct {
	Profile        string `json:"profile,omitempty" yaml:"profile,omitempty" mapstructure:"profile"`
	AllowDangerous bool   `json:"allow_dangerous,omitempty" yaml:"allow_dangerous,omitempty" mapstructure:"allow_dangerous"`
}

// BuildConfig resolves an ExtensionPolicyConfig into a concrete Config.
func BuildConfig(ec ExtensionPolicyConfig) Config {
	cfg := ResolveProfile(Profile(ec.Profile))
	if ec.AllowDangerous {
		cfg.DenyCaps = cfg.DenyCaps.Without(capability.Exec, capability.Env)
	}
	return cfg
}

// ResolveProfile returns the Config for a named profile, defaulting to
// standard for unknown names.
func ResolveProfile(p Profile) Config {
	switch p {
	case ProfileSafe:
		return Config{
			Mode:        ModeStrict,
			DefaultCaps: capability.NewSet(capability.Read, capability.Events, capability.Session),
			DenyCaps: capability.NewSet(
				capability.Exec, capability.Env, capability.HTTP, capability.Write,
				capability.UI, capability.Log, capability.Tool,
			),
			PerExtension: map[string]Override{},
		}
	case ProfilePermissive:
		return Config{
			Mode:        ModePermissive,
			DefaultCaps: capability.NewSet(capability.All...),
			DenyCaps:    capability.Set{},
			PerExtension: map[string]Override{},
		}
	case ProfileStandard:
		fallthrough
	default:
		return Config{
			Mode: ModePrompt,
			DefaultCaps: capability.NewSet(
				capability.Read, capability.Write, capability.HTTP,
				capability.Events, capability.Session,
			),
			DenyCaps:     capability.NewSet(capability.Exec, capability.Env),
			PerExtension: map[string]Override{},
		}
	}
}
