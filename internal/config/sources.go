package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/aristath/consensus/internal/domain"
	"gopkg.in/yaml.v3"
)

// Sources is the operator-managed sources file: newsletters to read, alert
// rules, an optional investor allow-list and overriding settings.
type Sources struct {
	Publications []domain.Publication `yaml:"publications"`
	Rules        []domain.AlertRule   `yaml:"-"`
	Investors    []string             `yaml:"investors"`
	Settings     SourceSettings       `yaml:"settings"`
}

// SourceSettings overrides environment values when set.
type SourceSettings struct {
	PriceAlertThreshold float64 `yaml:"price_alert_threshold"`
}

type ruleSpec struct {
	Name      string `yaml:"name"`
	Condition string `yaml:"condition"`
	Email     string `yaml:"email"`
	Enabled   *bool  `yaml:"enabled"`
}

type sourcesFile struct {
	Sources `yaml:",inline"`
	Rules   []ruleSpec `yaml:"rules"`
}

// LoadSources reads a YAML sources file and expands environment variables.
// A missing file returns an error wrapping os.ErrNotExist.
func LoadSources(path string) (*Sources, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}
	return ParseSources(data)
}

// ParseSources decodes sources YAML. Rules default to enabled and unnamed
// rules get a positional name.
func ParseSources(data []byte) (*Sources, error) {
	// Expand ${VAR} environment variables
	expanded := os.ExpandEnv(string(data))

	var raw sourcesFile
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse sources yaml: %w", err)
	}

	src := raw.Sources
	for i, r := range raw.Rules {
		rule := domain.AlertRule{
			Name:      strings.TrimSpace(r.Name),
			Condition: strings.TrimSpace(r.Condition),
			Target:    strings.TrimSpace(r.Email),
			Enabled:   r.Enabled == nil || *r.Enabled,
		}
		if rule.Name == "" {
			rule.Name = fmt.Sprintf("rule-%d", i+1)
		}
		src.Rules = append(src.Rules, rule)
	}

	pubs := src.Publications[:0]
	for _, p := range src.Publications {
		if strings.TrimSpace(p.URL) == "" && strings.TrimSpace(p.FeedURL) == "" {
			continue
		}
		if p.Name == "" {
			p.Name = p.URL
		}
		pubs = append(pubs, p)
	}
	src.Publications = pubs

	return &src, nil
}
