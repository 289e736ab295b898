package skill

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSkillMD(t *testing.T, dir, name, description string) {
	t.Helper()
	content := "---\nname: " + name + "\ndescription: " + description + "\n---\n\nBody text for " + name + ".\n"
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(content), 0o644); err != nil {
		t.Fatalf("write SKILL.md: %v", err)
	}
}

func TestLoadSkill_ParsesFrontMatterAndBody(t *testing.T) {
	dir := t.TempDir()
	writeSkillMD(t, dir, "refund-handler", "Handles refund requests")

	sk, err := LoadSkill(dir, TrustTrusted)
	if err != nil {
		t.Fatalf("load skill: %v", err)
	}
	if sk.Metadata.Name != "refund-handler" {
		t.Fatalf("expected name refund-handler, got %q", sk.Metadata.Name)
	}
	if sk.Metadata.Description != "Handles refund requests" {
		t.Fatalf("unexpected description: %q", sk.Metadata.Description)
	}
	if sk.Body == "" {
		t.Fatal("expected non-empty body")
	}
	if sk.TrustLevel != TrustTrusted {
		t.Fatalf("expected TrustTrusted, got %v", sk.TrustLevel)
	}
}

func TestLoadSkill_MissingRequiredField(t *testing.T) {
	dir := t.TempDir()
	content := "---\nname: incomplete-skill\n---\n\nbody\n"
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadSkill(dir, TrustTrusted); err == nil {
		t.Fatal("expected validation error for missing description")
	}
}
