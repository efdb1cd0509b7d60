package persona

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultProfiles []byte

type Style struct {
	Tone         string   `yaml:"tone" json:"tone"`
	Catchphrases []string `yaml:"catchphrases" json:"catchphrases,omitempty"`
}

// Profile is static persona configuration. It is never mutated during a session.
type Profile struct {
	ID          string   `yaml:"id" json:"id"`
	DisplayName string   `yaml:"display_name" json:"displayName"`
	Role        string   `yaml:"role" json:"role"`
	Version     string   `yaml:"version" json:"version,omitempty"`
	Aliases     []string `yaml:"aliases" json:"aliases,omitempty"`
	Grounded    bool     `yaml:"grounded" json:"grounded"`
	Mediator    bool     `yaml:"mediator" json:"mediator"`

	Temperature float64 `yaml:"temperature" json:"temperature"`
	TopP        float64 `yaml:"top_p" json:"topP,omitempty"`
	MaxTokens   int     `yaml:"max_tokens" json:"maxTokens,omitempty"`

	Expertise          []string `yaml:"expertise" json:"expertise"`
	Style              Style    `yaml:"style" json:"style"`
	CommunicationStyle string   `yaml:"communication_style" json:"communicationStyle,omitempty"`
	RiskTolerance      string   `yaml:"risk_tolerance" json:"riskTolerance,omitempty"`
	DecisionMaking     string   `yaml:"decision_making" json:"decisionMaking,omitempty"`
	InteractionStyle   string   `yaml:"interaction_style" json:"interactionStyle,omitempty"`
	Responsibilities   []string `yaml:"responsibilities" json:"responsibilities,omitempty"`

	SystemPrompt      string   `yaml:"system_prompt" json:"-"`
	ResponseStructure []string `yaml:"response_structure" json:"-"`
	DebatePhrases     []string `yaml:"debate_phrases" json:"-"`
	Fallback          string   `yaml:"fallback" json:"-"`
}

// Name is the display name, or the id when none is configured.
func (p Profile) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.ID
}

type profileFile struct {
	Personas []Profile `yaml:"personas"`
}

var ErrNoProfiles = errors.New("persona: no profiles defined")

// LoadProfiles reads profiles from a YAML file. An empty path yields the
// built-in Legal-AI, Tech-AI and Business-AI set.
func LoadProfiles(path string) ([]Profile, error) {
	if path == "" {
		return DefaultProfiles()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read persona file %s: %w", path, err)
	}
	return ParseProfiles(data)
}

func DefaultProfiles() ([]Profile, error) {
	return ParseProfiles(defaultProfiles)
}

func ParseProfiles(data []byte) ([]Profile, error) {
	var file profileFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse persona profiles: %w", err)
	}
	if len(file.Personas) == 0 {
		return nil, ErrNoProfiles
	}
	for i := range file.Personas {
		p := &file.Personas[i]
		p.ID = strings.TrimSpace(p.ID)
		p.SystemPrompt = strings.TrimSpace(p.SystemPrompt)
		p.Fallback = strings.TrimSpace(p.Fallback)
	}
	if err := Validate(file.Personas); err != nil {
		return nil, err
	}
	return file.Personas, nil
}

// Validate checks ids and names are unique, every persona has a fallback
// utterance and sampling parameters are in range.
func Validate(profiles []Profile) error {
	if len(profiles) == 0 {
		return ErrNoProfiles
	}
	ids := make(map[string]bool)
	names := make(map[string]string)
	for _, p := range profiles {
		if p.ID == "" {
			return errors.New("persona: profile without id")
		}
		if ids[p.ID] {
			return fmt.Errorf("persona %s: duplicate id", p.ID)
		}
		ids[p.ID] = true
		if p.Fallback == "" {
			return fmt.Errorf("persona %s: fallback utterance is required", p.ID)
		}
		if p.Temperature < 0 || p.Temperature > 2 {
			return fmt.Errorf("persona %s: temperature %.2f out of range [0,2]", p.ID, p.Temperature)
		}
		if p.TopP < 0 || p.TopP > 1 {
			return fmt.Errorf("persona %s: top_p %.2f out of range [0,1]", p.ID, p.TopP)
		}
		for _, n := range p.MentionNames() {
			key := strings.ToLower(n)
			if owner, ok := names[key]; ok && owner != p.ID {
				return fmt.Errorf("persona %s: name %q already used by %s", p.ID, n, owner)
			}
			names[key] = p.ID
		}
	}
	return nil
}

// MentionNames lists every name an "@" marker may use for this persona.
func (p Profile) MentionNames() []string {
	out := []string{p.ID}
	if p.DisplayName != "" {
		out = append(out, p.DisplayName)
	}
	return append(out, p.Aliases...)
}
