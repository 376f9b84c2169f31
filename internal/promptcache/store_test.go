package promptcache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pi-cli/pi/internal/capability"
)

func TestRecordLookupRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "permissions.json"))

	if _, found := s.Lookup("ext-a", capability.Exec); found {
		t.Fatal("expected miss on empty store")
	}

	s.Record("ext-a", capability.Exec, true)
	allow, found := s.Lookup("ext-a", capability.Exec)
	if !found || !allow {
		t.Fatalf("got (%v, %v), want (true, true)", allow, found)
	}
}

func TestRevokeClearsRecordedCaps(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "permissions.json"))
	s.Record("ext-a", capability.Exec, true)
	s.Record("ext-a", capability.HTTP, false)

	if err := s.Revoke("ext-a"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, found := s.Lookup("ext-a", capability.Exec); found {
		t.Fatal("expected Revoke to clear exec")
	}
	if _, found := s.Lookup("ext-a", capability.HTTP); found {
		t.Fatal("expected Revoke to clear http")
	}
}

func TestLastRecordedValueWins(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "permissions.json"))

	s.Record("ext-a", capability.Exec, true)
	s.Record("ext-a", capability.Exec, false)
	allow, found := s.Lookup("ext-a", capability.Exec)
	if !found || allow {
		t.Fatalf("got (%v, %v), want (false, true)", allow, found)
	}

	if err := s.Revoke("ext-a"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, found := s.Lookup("ext-a", capability.Exec); found {
		t.Fatal("expected None after revoke")
	}
}

func TestPersistenceAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "permissions.json")

	s1 := New(path)
	s1.Record("ext-a", capability.HTTP, true)

	s2 := New(path)
	allow, found := s2.Lookup("ext-a", capability.HTTP)
	if !found || !allow {
		t.Fatalf("expected decision to survive across Store instances, got (%v, %v)", allow, found)
	}
}

func TestFileModeRestricted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "permissions.json")
	s := New(path)
	s.Record("ext-a", capability.Read, true)

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm()&0o077 != 0 {
		t.Fatalf("expected owner-only permissions, got %v", info.Mode().Perm())
	}
}

func TestCorruptFileIsNotSilentlyOverwritten(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "permissions.json")
	if err := os.WriteFile(path, []byte("{not valid json"), 0o600); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	s := New(path)
	if _, found := s.Lookup("ext-a", capability.Read); found {
		t.Fatal("corrupt store must not report a found decision")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(raw) != "{not valid json" {
		t.Fatal("corrupt file must not be silently overwritten by a failed load")
	}
}

func TestResetAllClearsEverything(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "permissions.json"))
	s.Record("ext-a", capability.Read, true)
	s.Record("ext-b", capability.Write, false)

	if err := s.ResetAll(); err != nil {
		t.Fatalf("ResetAll: %v", err)
	}
	if _, found := s.Lookup("ext-a", capability.Read); found {
		t.Fatal("expected ext-a cleared")
	}
	if _, found := s.Lookup("ext-b", capability.Write); found {
		t.Fatal("expected ext-b cleared")
	}
}
