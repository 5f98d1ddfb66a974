package learning

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// SeedFile is the admin seed document.
type SeedFile struct {
	Rules []SeedRule `yaml:"rules"`
}

// ParseSeed decodes a seed document and checks that every rule names a
// pattern key and a learned value.
func ParseSeed(r io.Reader) ([]SeedRule, error) {
	var f SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "learning: decode seed file")
	}

	var problems []string
	for i, rule := range f.Rules {
		if strings.TrimSpace(rule.PatternKey) == "" {
			problems = append(problems, fmt.Sprintf("rule %d: pattern_key is required", i+1))
		}
		if strings.TrimSpace(rule.LearnedValue) == "" {
			problems = append(problems, fmt.Sprintf("rule %d: learned_value is required", i+1))
		}
	}
	if len(problems) > 0 {
		return nil, eris.Errorf("learning: invalid seed file: %s", strings.Join(problems, "; "))
	}
	return f.Rules, nil
}

// LoadSeedFile reads and parses a seed document from disk.
func LoadSeedFile(path string) ([]SeedRule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "learning: open seed file %s", path)
	}
	defer f.Close() //nolint:errcheck
	return ParseSeed(f)
}
