// Package skill implements the declarative skill registry (spec.md 4.7):
// directory discovery, SKILL.md YAML front-matter parsing, and the
// trust-policy gate on scripted resources.
package skill

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// TrustLevel classifies a skill root, gating access to resources under
// scripts/ (spec.md 4.7).
type TrustLevel string

const (
	TrustWorkspace TrustLevel = "workspace"
	TrustTrusted   TrustLevel = "trusted"
	TrustUntrusted TrustLevel = "untrusted"
)

// Metadata is a skill's SKILL.md YAML front matter (spec.md 6: "A skill
// is a directory containing SKILL.md with YAML front matter {name,
// description, …}").
type Metadata struct {
	Name        string   `yaml:"name" validate:"required"`
	Description string   `yaml:"description" validate:"required"`
	Version     string   `yaml:"version"`
	Tags        []string `yaml:"tags"`
}

var validate = validator.New()

// Validate checks m's required fields.
func (m Metadata) Validate() error {
	return validate.Struct(m)
}

// Skill is a loaded skill: its metadata, the body text that follows the
// front matter (returned verbatim on activation), and the trust level
// assigned to its root directory.
type Skill struct {
	Metadata   Metadata
	Body       string
	Directory  string
	TrustLevel TrustLevel
}

const frontMatterDelim = "---"

// LoadSkill reads dir/SKILL.md, parses its YAML front matter and body, and
// returns a Skill with the given trust level.
func LoadSkill(dir string, trust TrustLevel) (*Skill, error) {
	f, err := os.Open(filepath.Join(dir, "SKILL.md"))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	meta, body, err := parseSkillMD(f)
	if err != nil {
		return nil, err
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	return &Skill{Metadata: meta, Body: body, Directory: dir, TrustLevel: trust}, nil
}

// parseSkillMD splits a SKILL.md file into its "---"-delimited YAML front
// matter and the remaining body text.
func parseSkillMD(r io.Reader) (Metadata, string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var fmLines []string
	var bodyLines []string
	inFrontMatter := false
	sawOpenDelim := false

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimRight(line, "\r")
		if !sawOpenDelim && strings.TrimSpace(trimmed) == frontMatterDelim {
			sawOpenDelim = true
			inFrontMatter = true
			continue
		}
		if inFrontMatter && strings.TrimSpace(trimmed) == frontMatterDelim {
			inFrontMatter = false
			continue
		}
		if inFrontMatter {
			fmLines = append(fmLines, trimmed)
		} else {
			bodyLines = append(bodyLines, trimmed)
		}
	}
	if err := scanner.Err(); err != nil {
		return Metadata{}, "", err
	}

	var meta Metadata
	if len(fmLines) > 0 {
		if err := yaml.Unmarshal([]byte(strings.Join(fmLines, "\n")), &meta); err != nil {
			return Metadata{}, "", err
		}
	}
	body := strings.TrimLeft(strings.Join(bodyLines, "\n"), "\n")
	return meta, body, nil
}
