package skill

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/smallnest/goskills"
)

// Registration is a skill entry stored in a Registry (spec.md 4.7: "A
// registry maps skill names to {metadata, skill_directory, trust_level}").
type Registration struct {
	Metadata   Metadata
	Directory  string
	TrustLevel TrustLevel
}

// Registry maps skill names to their registration and enforces the trust
// gate on resource access (spec.md 4.7).
type Registry struct {
	policy TrustPolicy

	mu    sync.RWMutex
	byName map[string]*Registration
	bodies map[string]string
}

// NewRegistry constructs an empty registry with the given trust policy.
func NewRegistry(policy TrustPolicy) *Registry {
	return &Registry{policy: policy, byName: make(map[string]*Registration), bodies: make(map[string]string)}
}

// Register adds sk under its declared name, overwriting any prior
// registration with the same name.
func (r *Registry) Register(sk *Skill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[sk.Metadata.Name] = &Registration{Metadata: sk.Metadata, Directory: sk.Directory, TrustLevel: sk.TrustLevel}
	r.bodies[sk.Metadata.Name] = sk.Body
}

// Lookup returns the registration for name.
func (r *Registry) Lookup(name string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byName[name]
	return reg, ok
}

// Names returns every registered skill name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	return out
}

// Activate returns a skill's body (spec.md 6: "Activation returns the
// body").
func (r *Registry) Activate(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	body, ok := r.bodies[name]
	return body, ok
}

// LoadResource resolves requestedPath against the named skill's directory,
// applying the trust-policy gate (trust.go) and path-safety checks before
// reading the file (spec.md 6: "resource load returns raw bytes").
func (r *Registry) LoadResource(name, requestedPath string) ([]byte, Decision, error) {
	r.mu.RLock()
	reg, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, Decision{}, os.ErrNotExist
	}

	decision := r.policy.Evaluate(reg.TrustLevel, requestedPath)
	if !decision.Allowed {
		return nil, decision, ErrTrustDenied
	}

	resolved, err := safeJoin(reg.Directory, requestedPath)
	if err != nil {
		return nil, Decision{Allowed: false, Reason: "path-escape", Path: requestedPath}, err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, decision, err
	}
	return data, decision, nil
}

// DiscoverSkillDirs enumerates candidate skill directories under root
// using goskills' own directory walker (github.com/smallnest/goskills,
// the adapter dependency documented in jemygraw-langgraphgo/adapter/
// goskills: "skills, err := goskills.LoadSkillsFromDir(\"/path/to/skills\")"),
// returning each package's real filesystem path for LoadSkill to parse.
func DiscoverSkillDirs(root string) ([]string, error) {
	pkgs, err := goskills.LoadSkillsFromDir(root)
	if err != nil {
		return nil, err
	}
	dirs := make([]string, 0, len(pkgs))
	for _, p := range pkgs {
		dirs = append(dirs, p.GetPath())
	}
	return dirs, nil
}

// LoadRegistry discovers skill directories under root, loads each one's
// SKILL.md, and registers it with trustFor(dirName) determining its trust
// level. Directories without a SKILL.md are skipped rather than treated as
// fatal, since root may contain non-skill siblings.
func LoadRegistry(root string, policy TrustPolicy, trustFor func(dirName string) TrustLevel) (*Registry, error) {
	reg := NewRegistry(policy)
	dirs, err := DiscoverSkillDirs(root)
	if err != nil {
		return nil, err
	}
	for _, dir := range dirs {
		sk, err := LoadSkill(dir, trustFor(filepath.Base(dir)))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		reg.Register(sk)
	}
	return reg, nil
}
