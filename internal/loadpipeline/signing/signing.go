// Package signing provides ed25519 package signing and verification for
// .piext extension bundles, adapted near-verbatim from
// internal/plugin/signing/signing.go, itself standard-library-only
// (crypto/ed25519, crypto/sha256), not golang.org/x/crypto.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
)

// GenerateKeyPair creates a new ed25519 key pair for signing extension
// packages.
func GenerateKeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("signing: generate key pair: %w", err)
	}
	return pub, priv, nil
}

// SignPackage signs packagePath's SHA-256 digest with privateKey and
// writes the hex-encoded signature to outputSigPath.
func SignPackage(packagePath, outputSigPath string, privateKey ed25519.PrivateKey) error {
	data, err := os.ReadFile(packagePath)
	if err != nil {
		return fmt.Errorf("signing: read package: %w", err)
	}
	digest := sha256.Sum256(data)
	sig := ed25519.Sign(privateKey, digest[:])
	if err := os.WriteFile(outputSigPath, []byte(hex.EncodeToString(sig)), 0o644); err != nil {
		return fmt.Errorf("signing: write signature: %w", err)
	}
	return nil
}

// VerifyPackage verifies packagePath's signature file against every key
// in trustedKeys, succeeding as soon as one matches.
func VerifyPackage(packagePath, signaturePath string, trustedKeys []ed25519.PublicKey) error {
	data, err := os.ReadFile(packagePath)
	if err != nil {
		return fmt.Errorf("signing: read package: %w", err)
	}
	digest := sha256.Sum256(data)

	sigHex, err := os.ReadFile(signaturePath)
	if err != nil {
		return fmt.Errorf("signing: read signature: %w", err)
	}
	sig, err := hex.DecodeString(string(sigHex))
	if err != nil {
		return fmt.Errorf("signing: invalid signature encoding: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("signing: invalid signature length: expected %d, got %d", ed25519.SignatureSize, len(sig))
	}

	for _, pub := range trustedKeys {
		if ed25519.Verify(pub, digest[:], sig) {
			return nil
		}
	}
	return fmt.Errorf("signing: no trusted key matches package signature")
}

// DefaultSignaturePath returns the conventional signature path for a
// package: "<packagePath>.sig".
func DefaultSignaturePath(packagePath string) string {
	return packagePath + ".sig"
}

// Required reports whether signature verification is mandatory, via the
// PI_REQUIRE_SIGNED_EXTENSIONS environment variable (opt-in, matching the
// teacher's GOATFLOW_REQUIRE_SIGNATURES convention).
func Required() bool {
	return os.Getenv("PI_REQUIRE_SIGNED_EXTENSIONS") == "1"
}
