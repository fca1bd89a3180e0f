package identity

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewServiceGeneratesUUID(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "identity.json")

	svc, err := NewService(configPath, "IP:5555")
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	info := svc.GetInfo()
	if len(info.UUID) != 36 {
		t.Errorf("UUID should be 36 characters, got %d: %s", len(info.UUID), info.UUID)
	}
	if info.Name == "" {
		t.Error("Name should have a default")
	}
	if info.Target != "IP:5555" {
		t.Errorf("Target = %q, want IP:5555", info.Target)
	}
}

func TestNewServicePersistsIdentity(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "identity.json")

	first, err := NewService(configPath, "IP:5555")
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	second, err := NewService(configPath, "IP:5555")
	if err != nil {
		t.Fatalf("NewService failed on reload: %v", err)
	}

	if first.GetInfo().UUID != second.GetInfo().UUID {
		t.Error("identity should survive a restart")
	}
}

func TestSetName(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "identity.json")

	svc, err := NewService(configPath, "IP:5555")
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	if err := svc.SetName("Living Room TV"); err != nil {
		t.Fatalf("SetName failed: %v", err)
	}

	reloaded, err := NewService(configPath, "IP:5555")
	if err != nil {
		t.Fatalf("NewService failed on reload: %v", err)
	}
	if reloaded.GetInfo().Name != "Living Room TV" {
		t.Errorf("Name = %q, want Living Room TV", reloaded.GetInfo().Name)
	}
}

func TestNewServiceRejectsCorruptConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "identity.json")
	if err := os.WriteFile(configPath, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	// A corrupt file is replaced by a fresh identity rather than failing.
	svc, err := NewService(configPath, "IP:5555")
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	if svc.GetInfo().UUID == "" {
		t.Error("a fresh identity should be generated over a corrupt file")
	}
}
