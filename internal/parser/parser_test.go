package parser

import (
	"os"
	"testing"
)

func TestRegistryFindParser(t *testing.T) {
	path := writeTempLog(t, "test_registry_detect.log", sampleLog)

	p, err := GetGlobalRegistry().FindParser(path)
	if err != nil {
		t.Fatalf("FindParser failed: %v", err)
	}
	if p.Name() != "keysight_ict" {
		t.Errorf("Expected keysight_ict, got %s", p.Name())
	}
}

func TestRegistryFindParserRejects(t *testing.T) {
	path := "test_registry_other.log"
	os.WriteFile(path, []byte("hello\nworld\n"), 0644)
	defer os.Remove(path)

	if _, err := GetGlobalRegistry().FindParser(path); err == nil {
		t.Error("Expected no parser for plain text")
	}
}

func TestRegistryGetParserByName(t *testing.T) {
	p, err := GetGlobalRegistry().GetParserByName("Keysight_ICT")
	if err != nil {
		t.Fatalf("GetParserByName failed: %v", err)
	}
	if p.Name() != "keysight_ict" {
		t.Errorf("Expected keysight_ict, got %s", p.Name())
	}

	if _, err := GetGlobalRegistry().GetParserByName("unknown"); err == nil {
		t.Error("Expected an error for an unknown parser name")
	}
}

func TestRegistryNames(t *testing.T) {
	names := GetGlobalRegistry().Names()
	if len(names) == 0 || names[0] != "keysight_ict" {
		t.Errorf("Expected keysight_ict in names, got %v", names)
	}
}
