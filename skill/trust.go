package skill

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/TVScoundrel/agentforge-sub003/graph"
)

// ErrTrustDenied and ErrPathEscape are returned by the policy gate; both
// are reported as graph.PolicyError so they flow through the same
// "policy" error-taxonomy category as bulkhead/circuit-breaker rejections
// (spec.md 7).
var (
	ErrTrustDenied = &graph.PolicyError{Reason: "untrusted-script-denied", Message: "untrusted skill root denies scripts/ access"}
	ErrPathEscape  = &graph.PolicyError{Reason: "path-escape", Message: "resource path escapes skill root"}
)

const scriptsPrefix = "scripts" + string(filepath.Separator)

// Decision is an auditable trust-policy outcome (spec.md 4.7: "Policy
// decisions are emitted as auditable events").
type Decision struct {
	Allowed bool
	Reason  string
	Path    string
}

// AllowUntrustedScripts, when true, overrides the untrusted-root denial
// for requests under scripts/ (spec.md 4.7 table: "untrusted | anything |
// deny unless allow_untrusted_scripts override is set").
type TrustPolicy struct {
	AllowUntrustedScripts bool
}

// Evaluate applies the trust table in spec.md 4.7 to a resource request
// path (relative to the skill root, already cleaned).
func (p TrustPolicy) Evaluate(trust TrustLevel, relPath string) Decision {
	if !isUnderScripts(relPath) {
		return Decision{Allowed: true, Reason: "not-script", Path: relPath}
	}
	switch trust {
	case TrustWorkspace, TrustTrusted:
		return Decision{Allowed: true, Reason: "trusted-script", Path: relPath}
	case TrustUntrusted:
		if p.AllowUntrustedScripts {
			return Decision{Allowed: true, Reason: "untrusted-script-override", Path: relPath}
		}
		return Decision{Allowed: false, Reason: "untrusted-script-denied", Path: relPath}
	default:
		return Decision{Allowed: false, Reason: "unknown-trust-level", Path: relPath}
	}
}

func isUnderScripts(relPath string) bool {
	clean := filepath.ToSlash(filepath.Clean(relPath))
	return clean == "scripts" || strings.HasPrefix(clean, "scripts/")
}

// safeJoin resolves requested (relative to root) and rejects absolute
// paths, ".." segments, and symlink targets that escape root, checked via
// real-path comparison (spec.md 4.7/8 law 8: "no resource-load call
// returns content for a path that, after realpath resolution, lies
// outside the skill root").
func safeJoin(root, requested string) (string, error) {
	if filepath.IsAbs(requested) {
		return "", fmt.Errorf("%w: absolute path %q", errAbsolutePath, requested)
	}
	for _, seg := range strings.Split(filepath.ToSlash(requested), "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", errParentSegment, requested)
		}
	}

	rootReal, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", err
	}
	joined := filepath.Join(rootReal, requested)

	resolved, err := resolveExistingOrParent(joined)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(rootReal, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrPathEscape
	}
	return joined, nil
}

// resolveExistingOrParent real-path-resolves path; if path itself does not
// exist yet (e.g. a write target), it resolves the nearest existing
// ancestor instead so callers can still detect a symlinked parent
// directory escaping the root.
func resolveExistingOrParent(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	parent := filepath.Dir(path)
	if parent == path {
		return path, nil
	}
	resolvedParent, perr := resolveExistingOrParent(parent)
	if perr != nil {
		return "", perr
	}
	return filepath.Join(resolvedParent, filepath.Base(path)), nil
}

var errAbsolutePath = fmt.Errorf("skill: absolute paths are not permitted")
var errParentSegment = fmt.Errorf("skill: \"..\" path segments are not permitted")
