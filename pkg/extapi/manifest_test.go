package extapi

import "testing"

func TestManifestID(t *testing.T) {
	m := &Manifest{Name: "hello-extension"}
	if m.ID() != ExtensionID("hello-extension") {
		t.Errorf("expected hello-extension, got %s", m.ID())
	}

	var nilManifest *Manifest
	if nilManifest.ID() != "" {
		t.Errorf("expected empty id for nil manifest, got %s", nilManifest.ID())
	}
}

func TestExtensionIDString(t *testing.T) {
	id := ExtensionID("my-ext")
	if id.String() != "my-ext" {
		t.Errorf("expected my-ext, got %s", id.String())
	}
}
