package loadpipeline

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pi-cli/pi/internal/loadpipeline/packaging"
	"github.com/pi-cli/pi/internal/loadpipeline/signing"
)

// InstallOptions configures Pipeline.Install's handling of a .piext
// archive before it is handed to Load.
type InstallOptions struct {
	// TrustedKeys verifies the archive's signature when non-empty, or
	// when signing.Required() reports the operator has mandated it.
	TrustedKeys []ed25519.PublicKey
	// InstallDir is where the archive is extracted; a per-archive
	// subdirectory named after the package is created beneath it. If
	// empty, an OS temp directory is used.
	InstallDir string
}

// Install extracts the .piext archive at archivePath, optionally
// verifying its signature, and loads the resulting extension through the
// same resolve/transform/instantiate/activate/snapshot pipeline as a
// directory-based Load. Grounded on the loader flow of ExtractPlugin
// feeding straight into plugin registration, generalized here to gate
// on signing.Required() the way a package manager verifies before
// unpacking untrusted archives.
func (p *Pipeline) Install(ctx context.Context, archivePath string, opts InstallOptions) (*Extension, error) {
	if err := packaging.ValidatePackage(archivePath, ManifestFile); err != nil {
		return nil, &LoadError{ExtensionID: filepath.Base(archivePath), Phase: "manifest", Err: err}
	}

	if len(opts.TrustedKeys) > 0 || signing.Required() {
		sigPath := signing.DefaultSignaturePath(archivePath)
		if err := signing.VerifyPackage(archivePath, sigPath, opts.TrustedKeys); err != nil {
			return nil, &LoadError{ExtensionID: filepath.Base(archivePath), Phase: "verify", Err: err}
		}
	}

	destRoot := opts.InstallDir
	if destRoot == "" {
		var err error
		destRoot, err = os.MkdirTemp("", "pi-extension-*")
		if err != nil {
			return nil, &LoadError{ExtensionID: filepath.Base(archivePath), Phase: "extract", Err: err}
		}
	}
	destDir := filepath.Join(destRoot, extensionDirName(archivePath))

	if err := packaging.ExtractExtension(archivePath, destDir); err != nil {
		return nil, &LoadError{ExtensionID: filepath.Base(archivePath), Phase: "extract", Err: fmt.Errorf("install: %w", err)}
	}

	return p.Load(ctx, destDir)
}

func extensionDirName(archivePath string) string {
	base := filepath.Base(archivePath)
	ext := filepath.Ext(base)
	return base[:len(base)-len(ext)]
}
