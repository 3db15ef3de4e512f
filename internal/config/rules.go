package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/jonathan/job-insights/internal/parsing"
	"github.com/jonathan/job-insights/internal/types"
	"gopkg.in/yaml.v3"
)

//go:embed default_rules.yaml
var defaultRules []byte

// RuleFile is the YAML category rule file.
type RuleFile struct {
	Sector          CategoryTable `yaml:"sector" validate:"required"`
	ExperienceLevel CategoryTable `yaml:"experience_level" validate:"required"`
	ContractType    CategoryTable `yaml:"contract_type" validate:"required"`
}

// CategoryTable is one ordered keyword table.
type CategoryTable struct {
	Fields   []string       `yaml:"fields" validate:"required,min=1,dive,oneof=job_url apply_type contract_type experience_level company_sector"`
	Fallback string         `yaml:"fallback" validate:"required"`
	Rules    []CategoryRule `yaml:"rules" validate:"dive"`
}

// CategoryRule maps keywords to one category.
type CategoryRule struct {
	Category string   `yaml:"category" validate:"required"`
	Keywords []string `yaml:"keywords" validate:"required,min=1,dive,required"`
}

// DefaultRules returns the embedded rule file.
func DefaultRules() (*RuleFile, error) {
	return ParseRules(defaultRules)
}

// LoadRules reads a rule file from disk, or the embedded defaults when path is empty.
func LoadRules(path string) (*RuleFile, error) {
	if path == "" {
		return DefaultRules()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %s: %w", path, err)
	}
	rf, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("rules file %s: %w", path, err)
	}
	return rf, nil
}

// ParseRules decodes and validates YAML rule content.
func ParseRules(data []byte) (*RuleFile, error) {
	var rf RuleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse rules YAML: %w", err)
	}
	if err := types.Validator().Struct(rf); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}
	return &rf, nil
}

// CategorySet compiles the tables into matchers.
func (rf *RuleFile) CategorySet() (*parsing.CategorySet, error) {
	sector, err := rf.Sector.matcher()
	if err != nil {
		return nil, fmt.Errorf("sector rules: %w", err)
	}
	experience, err := rf.ExperienceLevel.matcher()
	if err != nil {
		return nil, fmt.Errorf("experience_level rules: %w", err)
	}
	contract, err := rf.ContractType.matcher()
	if err != nil {
		return nil, fmt.Errorf("contract_type rules: %w", err)
	}
	return &parsing.CategorySet{
		Sector:          sector,
		ExperienceLevel: experience,
		ContractType:    contract,
	}, nil
}

func (t CategoryTable) matcher() (*parsing.CategoryMatcher, error) {
	rules := make([]parsing.CategoryRule, 0, len(t.Rules))
	for _, r := range t.Rules {
		rules = append(rules, parsing.CategoryRule{Category: r.Category, Keywords: r.Keywords})
	}
	return parsing.NewCategoryMatcher(t.Fields, rules, t.Fallback)
}
