package service

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Built-in persona texts.
const (
	DefaultPersona = "Je bent Pluisje de hamster-AI. Je bent nieuwsgierig, speels en helpt Anita " +
		"met slimme en lieve antwoorden. Spreek op een vrolijke toon en gebruik af en toe een hamstergrapje."
	LibraryStaffPersona = "Je bent een AI-assistent voor bibliotheekmedewerkers. " +
		"Gebruik heldere, vriendelijke en toegankelijke Nederlandse taal."
	LibraryStaffSuffix = "@bibliotheekzout.nl"
	// LibraryStaffLocal is the shared staff account's local part.
	LibraryStaffLocal = "bieb"
)

// PersonaRule selects Prompt for identities whose local part equals Local
// or that end in Suffix. A rule sets exactly one of the two.
type PersonaRule struct {
	Local  string `yaml:"local,omitempty"`
	Suffix string `yaml:"suffix,omitempty"`
	Prompt string `yaml:"prompt"`
}

func (r PersonaRule) matches(identity string) bool {
	if r.Local != "" {
		local, _, _ := strings.Cut(identity, "@")
		return strings.EqualFold(local, r.Local)
	}
	return strings.HasSuffix(identity, strings.ToLower(r.Suffix))
}

// Personas maps identities to the system prompt that opens their window.
type Personas struct {
	Default string        `yaml:"default"`
	Rules   []PersonaRule `yaml:"rules"`
}

// DefaultPersonas returns the built-in rules.
func DefaultPersonas() Personas {
	return Personas{
		Default: DefaultPersona,
		Rules: []PersonaRule{
			{Local: LibraryStaffLocal, Prompt: LibraryStaffPersona},
			{Suffix: LibraryStaffSuffix, Prompt: LibraryStaffPersona},
		},
	}
}

// LoadPersonas reads rules from a YAML file. An empty path returns the defaults.
// A file without a default persona keeps the built-in one.
//
//	default: "Je bent ..."
//	rules:
//	  - local: "bieb"
//	    prompt: "Je bent een AI-assistent ..."
//	  - suffix: "@bibliotheekzout.nl"
//	    prompt: "Je bent een AI-assistent ..."
func LoadPersonas(path string) (Personas, error) {
	if path == "" {
		return DefaultPersonas(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Personas{}, fmt.Errorf("read personas: %w", err)
	}
	var p Personas
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Personas{}, fmt.Errorf("parse personas: %w", err)
	}
	if strings.TrimSpace(p.Default) == "" {
		p.Default = DefaultPersona
	}
	for i, r := range p.Rules {
		if (r.Local == "") == (r.Suffix == "") {
			return Personas{}, fmt.Errorf("persona rule %d: exactly one of local and suffix required", i)
		}
		if r.Prompt == "" {
			return Personas{}, fmt.Errorf("persona rule %d: prompt required", i)
		}
		p.Rules[i].Local = strings.ToLower(r.Local)
		p.Rules[i].Suffix = strings.ToLower(r.Suffix)
	}
	return p, nil
}

// For returns the system prompt for identity. The first matching rule wins.
func (p Personas) For(identity string) string {
	identity = strings.ToLower(identity)
	for _, r := range p.Rules {
		if r.matches(identity) {
			return r.Prompt
		}
	}
	if p.Default == "" {
		return DefaultPersona
	}
	return p.Default
}
