package loadpipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/pi-cli/pi/pkg/extapi"
)

// ManifestFile is the conventional name for an extension's descriptor,
// adapted from plugin.yaml (internal/plugin/loader.go's loadManifest)
// and generalized from a single grpc/wasm Runtime field to
// a JS entry path plus the capability list an extension declares wanting.
const ManifestFile = "pi.extension.yaml"

// Manifest is the extension descriptor type, defined in pkg/extapi so
// that extension-author-facing tooling depends on one public package
// rather than reaching into this internal one.
type Manifest = extapi.Manifest

// loadManifest reads and parses pi.extension.yaml from dir, if present.
// A missing manifest is not an error: entry resolution falls back to the
// index.{ts,js,mjs} convention and the extension is granted whatever its
// policy profile's default_caps allow.
func loadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loadpipeline: read %s: %w", ManifestFile, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("loadpipeline: parse %s: %w", ManifestFile, err)
	}
	return &m, nil
}
