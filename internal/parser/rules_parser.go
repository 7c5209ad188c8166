package parser

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ict-visualizer/backend/internal/models"
)

// ParseProductRules parses a YAML product rules file.
func ParseProductRules(filePath string) (*models.ProductRules, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParseProductRulesFromReader(file)
}

// ParseProductRulesFromReader parses rules from an io.Reader.
func ParseProductRulesFromReader(r io.Reader) (*models.ProductRules, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseProductRulesFromBytes(data)
}

// ParseProductRulesFromBytes parses and validates a rules document.
func ParseProductRulesFromBytes(data []byte) (*models.ProductRules, error) {
	var rules models.ProductRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(rules.Products))
	for i := range rules.Products {
		p := &rules.Products[i]
		if p.ID == "" {
			return nil, fmt.Errorf("product rule %d has no id", i)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate product rule id: %s", p.ID)
		}
		seen[p.ID] = true
		if p.PanelSize < 0 {
			return nil, fmt.Errorf("product rule %s has negative panel size", p.ID)
		}
	}

	return &rules, nil
}
