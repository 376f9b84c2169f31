// Package extapi holds the extension-author-facing data types: the
// manifest format an extension ships, the stable extension identifier,
// and the session-entry shapes an extension's handlers read and append
// to. internal/* packages consume these types rather than defining their
// own, so a third party writing tooling against this runtime (a linter,
// a packaging CLI, a docs generator) has one package to import instead
// of reaching into internal/.
//
// Adapted from pkg/plugin/manifest.go's PluginManifest, dropping the
// out-of-process Runtime/Binary/WASMFile fields (this runtime has
// exactly one extension runtime: in-process JS) and adding
// Main/Capabilities for the JS entry point and declared capability set.
package extapi

// ExtensionID stably identifies a loaded extension within a process.
// Re-loading an id replaces the prior registration atomically; two
// concurrently loaded extensions never share one.
type ExtensionID string

func (id ExtensionID) String() string { return string(id) }

// Manifest is the universal extension descriptor, conventionally named
// pi.extension.yaml at an extension's root.
type Manifest struct {
	Name         string   `yaml:"name" json:"name"`
	Version      string   `yaml:"version" json:"version"`
	Main         string   `yaml:"main,omitempty" json:"main,omitempty"`
	Description  string   `yaml:"description,omitempty" json:"description,omitempty"`
	Author       string   `yaml:"author,omitempty" json:"author,omitempty"`
	License      string   `yaml:"license,omitempty" json:"license,omitempty"`
	Homepage     string   `yaml:"homepage,omitempty" json:"homepage,omitempty"`
	Capabilities []string `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`
}

// ID returns the manifest's declared name as an ExtensionID.
func (m *Manifest) ID() ExtensionID {
	if m == nil {
		return ""
	}
	return ExtensionID(m.Name)
}
