package skill

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRegistry_RegisterLookupActivate(t *testing.T) {
	dir := t.TempDir()
	writeSkillMD(t, dir, "research-agent", "Runs web research")
	sk, err := LoadSkill(dir, TrustTrusted)
	if err != nil {
		t.Fatalf("load skill: %v", err)
	}

	reg := NewRegistry(TrustPolicy{})
	reg.Register(sk)

	got, ok := reg.Lookup("research-agent")
	if !ok {
		t.Fatal("expected lookup to find research-agent")
	}
	if got.TrustLevel != TrustTrusted {
		t.Fatalf("expected trusted, got %v", got.TrustLevel)
	}

	body, ok := reg.Activate("research-agent")
	if !ok || body == "" {
		t.Fatalf("expected non-empty activation body, ok=%v body=%q", ok, body)
	}
}

func TestRegistry_LoadResourceDeniesUntrustedScript(t *testing.T) {
	dir := t.TempDir()
	writeSkillMD(t, dir, "shell-tool", "Runs shell scripts")
	if err := os.MkdirAll(filepath.Join(dir, "scripts"), 0o755); err != nil {
		t.Fatalf("mkdir scripts: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "scripts", "setup.sh"), []byte("#!/bin/sh\necho hi\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	sk, err := LoadSkill(dir, TrustUntrusted)
	if err != nil {
		t.Fatalf("load skill: %v", err)
	}
	reg := NewRegistry(TrustPolicy{})
	reg.Register(sk)

	_, decision, err := reg.LoadResource("shell-tool", "scripts/setup.sh")
	if err != ErrTrustDenied {
		t.Fatalf("expected ErrTrustDenied, got %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected decision.Allowed = false")
	}
}

func TestRegistry_LoadResourceAllowsNonScript(t *testing.T) {
	dir := t.TempDir()
	writeSkillMD(t, dir, "doc-tool", "Serves reference docs")
	if err := os.MkdirAll(filepath.Join(dir, "references"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "references", "guide.md"), []byte("guide contents"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	sk, err := LoadSkill(dir, TrustUntrusted)
	if err != nil {
		t.Fatalf("load skill: %v", err)
	}
	reg := NewRegistry(TrustPolicy{})
	reg.Register(sk)

	data, decision, err := reg.LoadResource("doc-tool", "references/guide.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("expected allowed decision")
	}
	if string(data) != "guide contents" {
		t.Fatalf("unexpected data: %q", data)
	}
}
