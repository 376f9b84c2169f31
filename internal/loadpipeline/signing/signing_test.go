package signing

import (
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"
)

func TestGenerateKeyPair(t *testing.T) {
	publicKey, privateKey, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}
	if len(publicKey) != ed25519.PublicKeySize {
		t.Errorf("public key size: expected %d, got %d", ed25519.PublicKeySize, len(publicKey))
	}
	if len(privateKey) != ed25519.PrivateKeySize {
		t.Errorf("private key size: expected %d, got %d", ed25519.PrivateKeySize, len(privateKey))
	}

	publicKey2, _, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("second GenerateKeyPair failed: %v", err)
	}
	if string(publicKey) == string(publicKey2) {
		t.Error("generated identical public keys (extremely unlikely)")
	}
}

func TestSignAndVerifyPackage(t *testing.T) {
	tempDir := t.TempDir()
	pkgPath := filepath.Join(tempDir, "test-extension.piext")
	if err := os.WriteFile(pkgPath, []byte("fake piext bundle"), 0o644); err != nil {
		t.Fatalf("failed to create test package: %v", err)
	}

	publicKey, privateKey, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("failed to generate key pair: %v", err)
	}

	sigPath := DefaultSignaturePath(pkgPath)
	if err := SignPackage(pkgPath, sigPath, privateKey); err != nil {
		t.Fatalf("failed to sign package: %v", err)
	}
	if _, err := os.Stat(sigPath); os.IsNotExist(err) {
		t.Fatal("signature file was not created")
	}

	trustedKeys := []ed25519.PublicKey{publicKey}
	if err := VerifyPackage(pkgPath, sigPath, trustedKeys); err != nil {
		t.Fatalf("failed to verify valid signature: %v", err)
	}
}

func TestVerifyPackageWithWrongKey(t *testing.T) {
	tempDir := t.TempDir()
	pkgPath := filepath.Join(tempDir, "test-extension.piext")
	os.WriteFile(pkgPath, []byte("test content"), 0o644)

	_, privateKey, _ := GenerateKeyPair()
	sigPath := DefaultSignaturePath(pkgPath)
	if err := SignPackage(pkgPath, sigPath, privateKey); err != nil {
		t.Fatalf("failed to sign package: %v", err)
	}

	wrongPublicKey, _, _ := GenerateKeyPair()
	err := VerifyPackage(pkgPath, sigPath, []ed25519.PublicKey{wrongPublicKey})
	if err == nil {
		t.Fatal("expected verification to fail with wrong key")
	}
}

func TestVerifyPackageModified(t *testing.T) {
	tempDir := t.TempDir()
	pkgPath := filepath.Join(tempDir, "test-extension.piext")
	os.WriteFile(pkgPath, []byte("original content"), 0o644)

	publicKey, privateKey, _ := GenerateKeyPair()
	sigPath := DefaultSignaturePath(pkgPath)
	if err := SignPackage(pkgPath, sigPath, privateKey); err != nil {
		t.Fatalf("failed to sign package: %v", err)
	}

	os.WriteFile(pkgPath, []byte("modified content"), 0o644)

	err := VerifyPackage(pkgPath, sigPath, []ed25519.PublicKey{publicKey})
	if err == nil {
		t.Fatal("expected verification to fail for modified package")
	}
}

func TestVerifyPackageMissingSignature(t *testing.T) {
	tempDir := t.TempDir()
	pkgPath := filepath.Join(tempDir, "test-extension.piext")
	os.WriteFile(pkgPath, []byte("test content"), 0o644)

	publicKey, _, _ := GenerateKeyPair()
	err := VerifyPackage(pkgPath, filepath.Join(tempDir, "nonexistent.sig"), []ed25519.PublicKey{publicKey})
	if err == nil {
		t.Fatal("expected verification to fail for missing signature")
	}
}

func TestDefaultSignaturePath(t *testing.T) {
	tests := []struct {
		pkg      string
		expected string
	}{
		{"/path/to/extension.piext", "/path/to/extension.piext.sig"},
		{"extension.piext", "extension.piext.sig"},
		{"", ".sig"},
	}
	for _, test := range tests {
		if got := DefaultSignaturePath(test.pkg); got != test.expected {
			t.Errorf("DefaultSignaturePath(%q) = %q, expected %q", test.pkg, got, test.expected)
		}
	}
}

func TestVerifyWithMultipleTrustedKeys(t *testing.T) {
	tempDir := t.TempDir()
	pkgPath := filepath.Join(tempDir, "test-extension.piext")
	os.WriteFile(pkgPath, []byte("test content"), 0o644)

	publicKey1, privateKey1, _ := GenerateKeyPair()
	publicKey2, _, _ := GenerateKeyPair()
	publicKey3, _, _ := GenerateKeyPair()

	sigPath := DefaultSignaturePath(pkgPath)
	if err := SignPackage(pkgPath, sigPath, privateKey1); err != nil {
		t.Fatalf("failed to sign package: %v", err)
	}

	if err := VerifyPackage(pkgPath, sigPath, []ed25519.PublicKey{publicKey2, publicKey1, publicKey3}); err != nil {
		t.Fatalf("failed to verify with multiple trusted keys: %v", err)
	}

	err := VerifyPackage(pkgPath, sigPath, []ed25519.PublicKey{publicKey2, publicKey3})
	if err == nil {
		t.Fatal("expected verification to fail when signer key not in trusted list")
	}
}

func TestRequired(t *testing.T) {
	os.Unsetenv("PI_REQUIRE_SIGNED_EXTENSIONS")
	if Required() {
		t.Error("expected Required to be false by default")
	}
	os.Setenv("PI_REQUIRE_SIGNED_EXTENSIONS", "1")
	defer os.Unsetenv("PI_REQUIRE_SIGNED_EXTENSIONS")
	if !Required() {
		t.Error("expected Required to be true when env var set")
	}
}
