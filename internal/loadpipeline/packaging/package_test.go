package packaging

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPackageExtension(t *testing.T) {
	tmpDir := t.TempDir()
	extDir := filepath.Join(tmpDir, "test-extension")
	if err := os.MkdirAll(extDir, 0o755); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(extDir, "pi.extension.yaml"), []byte("name: test-extension\nversion: 1.0.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(extDir, "index.js"), []byte("export default function activate() {}"), 0o644); err != nil {
		t.Fatal(err)
	}
	assetsDir := filepath.Join(extDir, "assets")
	if err := os.MkdirAll(assetsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(assetsDir, "icon.png"), []byte("png content"), 0o644); err != nil {
		t.Fatal(err)
	}

	outputPath := filepath.Join(tmpDir, "test-extension.piext")
	if err := PackageExtension(extDir, outputPath); err != nil {
		t.Fatalf("PackageExtension failed: %v", err)
	}
	if _, err := os.Stat(outputPath); os.IsNotExist(err) {
		t.Fatal("output archive not created")
	}

	reader, err := zip.OpenReader(outputPath)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()

	expected := map[string]bool{
		"pi.extension.yaml": false,
		"index.js":          false,
		"assets/icon.png":   false,
	}
	for _, f := range reader.File {
		if _, ok := expected[f.Name]; ok {
			expected[f.Name] = true
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("expected file %s not found in archive", name)
		}
	}
}

func TestPackageExtensionSkipsNodeModules(t *testing.T) {
	tmpDir := t.TempDir()
	extDir := filepath.Join(tmpDir, "test-extension")
	os.MkdirAll(filepath.Join(extDir, "node_modules", "dep"), 0o755)
	os.WriteFile(filepath.Join(extDir, "node_modules", "dep", "index.js"), []byte("noop"), 0o644)
	os.WriteFile(filepath.Join(extDir, "index.js"), []byte("noop"), 0o644)

	outputPath := filepath.Join(tmpDir, "out.piext")
	if err := PackageExtension(extDir, outputPath); err != nil {
		t.Fatalf("PackageExtension failed: %v", err)
	}

	reader, err := zip.OpenReader(outputPath)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()
	for _, f := range reader.File {
		if strings.HasPrefix(f.Name, "node_modules") {
			t.Errorf("archive should not contain node_modules, found %s", f.Name)
		}
	}
}

func TestExtractExtension(t *testing.T) {
	tmpDir := t.TempDir()
	zipPath := filepath.Join(tmpDir, "test.piext")
	zipFile, err := os.Create(zipPath)
	if err != nil {
		t.Fatal(err)
	}

	w := zip.NewWriter(zipFile)
	mw, _ := w.Create("pi.extension.yaml")
	mw.Write([]byte("name: extracted\nversion: 2.0.0\n"))
	iw, _ := w.Create("index.js")
	iw.Write([]byte("export default function activate() {}"))
	aw, _ := w.Create("assets/icon.png")
	aw.Write([]byte("png content"))
	w.Close()
	zipFile.Close()

	targetDir := filepath.Join(tmpDir, "extracted")
	if err := ExtractExtension(zipPath, targetDir); err != nil {
		t.Fatalf("ExtractExtension failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(targetDir, "pi.extension.yaml")); err != nil {
		t.Error("manifest not extracted")
	}
	if _, err := os.Stat(filepath.Join(targetDir, "index.js")); err != nil {
		t.Error("entry file not extracted")
	}
	if _, err := os.Stat(filepath.Join(targetDir, "assets", "icon.png")); err != nil {
		t.Error("asset not extracted")
	}
}

func TestExtractExtensionPathTraversal(t *testing.T) {
	tmpDir := t.TempDir()
	zipPath := filepath.Join(tmpDir, "malicious.piext")
	zipFile, _ := os.Create(zipPath)
	w := zip.NewWriter(zipFile)

	mw, _ := w.Create("pi.extension.yaml")
	mw.Write([]byte("name: evil\n"))
	pw, _ := w.Create("../../../etc/passwd")
	pw.Write([]byte("malicious"))
	w.Close()
	zipFile.Close()

	targetDir := filepath.Join(tmpDir, "extracted")
	err := ExtractExtension(zipPath, targetDir)
	if err == nil {
		t.Fatal("ExtractExtension should have failed due to path traversal")
	}
	if !strings.Contains(err.Error(), "path traversal") {
		t.Errorf("expected path traversal error, got: %v", err)
	}
}

func TestValidatePackage(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("valid package", func(t *testing.T) {
		zipPath := filepath.Join(tmpDir, "valid.piext")
		zipFile, _ := os.Create(zipPath)
		w := zip.NewWriter(zipFile)
		mw, _ := w.Create("pi.extension.yaml")
		mw.Write([]byte("name: valid\nversion: 1.0.0\n"))
		w.Close()
		zipFile.Close()

		if err := ValidatePackage(zipPath, "pi.extension.yaml"); err != nil {
			t.Errorf("expected valid, got error: %v", err)
		}
	})

	t.Run("missing manifest", func(t *testing.T) {
		zipPath := filepath.Join(tmpDir, "no-manifest.piext")
		zipFile, _ := os.Create(zipPath)
		w := zip.NewWriter(zipFile)
		iw, _ := w.Create("index.js")
		iw.Write([]byte("noop"))
		w.Close()
		zipFile.Close()

		if err := ValidatePackage(zipPath, "pi.extension.yaml"); err == nil {
			t.Error("expected error for missing manifest")
		}
	})
}

func TestExtractExtensionErrors(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("nonexistent archive", func(t *testing.T) {
		err := ExtractExtension("/nonexistent/file.piext", tmpDir)
		if err == nil {
			t.Error("expected error for nonexistent archive")
		}
	})

	t.Run("invalid archive", func(t *testing.T) {
		invalid := filepath.Join(tmpDir, "invalid.piext")
		os.WriteFile(invalid, []byte("not a zip file"), 0o644)
		err := ExtractExtension(invalid, filepath.Join(tmpDir, "out"))
		if err == nil {
			t.Error("expected error for invalid archive")
		}
	})
}
