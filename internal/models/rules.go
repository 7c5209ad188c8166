package models

// ProductRule describes deployment-site knowledge about one product:
// how to label it, how many boards its panel carries, and which tests the
// yield analytics should ignore. Rules never change how a log is
// interpreted, only how results are grouped and presented.
type ProductRule struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	PanelSize   int      `yaml:"panel_size" json:"panelSize"`
	IgnoreTests []string `yaml:"ignore_tests,omitempty" json:"ignoreTests,omitempty"`
}

// ProductRules is the full rules document.
type ProductRules struct {
	DefaultName string        `yaml:"default_name" json:"defaultName"`
	Products    []ProductRule `yaml:"products" json:"products"`
}

// Lookup returns the rule for a product id, or nil when none matches.
func (r *ProductRules) Lookup(productID string) *ProductRule {
	for i := range r.Products {
		if r.Products[i].ID == productID {
			return &r.Products[i]
		}
	}
	return nil
}

// DisplayName returns the configured name for a product id, falling back to
// the rules default and finally the id itself.
func (r *ProductRules) DisplayName(productID string) string {
	if rule := r.Lookup(productID); rule != nil && rule.Name != "" {
		return rule.Name
	}
	if r.DefaultName != "" {
		return r.DefaultName
	}
	return productID
}

// RulesInfo is the API response metadata for an uploaded rules document.
type RulesInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	UploadedAt   string `json:"uploadedAt"`
	ProductCount int    `json:"productCount"`
}
