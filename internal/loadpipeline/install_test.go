package loadpipeline

import (
	"context"
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"

	"github.com/pi-cli/pi/internal/eventloop"
	"github.com/pi-cli/pi/internal/loadpipeline/packaging"
	"github.com/pi-cli/pi/internal/loadpipeline/signing"
	"github.com/pi-cli/pi/internal/registry"
)

func buildTestArchive(t *testing.T, dir string) string {
	t.Helper()
	srcDir := filepath.Join(dir, "src")
	if err := os.MkdirAll(srcDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(srcDir, ManifestFile), []byte("name: installed-extension\nversion: 1.0.0\nmain: index.js\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(srcDir, "index.js"), []byte("export default function activate() {}"), 0o644); err != nil {
		t.Fatal(err)
	}
	archivePath := filepath.Join(dir, "installed-extension.piext")
	if err := packaging.PackageExtension(srcDir, archivePath); err != nil {
		t.Fatalf("PackageExtension failed: %v", err)
	}
	return archivePath
}

func TestPipelineInstallUnsigned(t *testing.T) {
	tmpDir := t.TempDir()
	archivePath := buildTestArchive(t, tmpDir)

	p := New(registry.New(nil), nil, eventloop.NewWallClock(), nil)
	ext, err := p.Install(context.Background(), archivePath, InstallOptions{InstallDir: filepath.Join(tmpDir, "installed")})
	if err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if ext.ID != "installed-extension" {
		t.Errorf("expected extension id installed-extension, got %s", ext.ID)
	}
	ext.stop()
}

func TestPipelineInstallRequiresValidSignature(t *testing.T) {
	tmpDir := t.TempDir()
	archivePath := buildTestArchive(t, tmpDir)

	_, privateKey, err := signing.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}
	sigPath := signing.DefaultSignaturePath(archivePath)
	if err := signing.SignPackage(archivePath, sigPath, privateKey); err != nil {
		t.Fatalf("SignPackage failed: %v", err)
	}

	wrongPublicKey, _, _ := signing.GenerateKeyPair()

	p := New(registry.New(nil), nil, eventloop.NewWallClock(), nil)
	_, err = p.Install(context.Background(), archivePath, InstallOptions{
		TrustedKeys: []ed25519.PublicKey{wrongPublicKey},
		InstallDir:  filepath.Join(tmpDir, "installed"),
	})
	if err == nil {
		t.Fatal("expected install to fail signature verification")
	}
}
