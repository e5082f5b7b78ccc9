package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"fintrack/internal/core"
)

// CategoriesFile is the layout of CATEGORIES_FILE.
//
//	expense: [Groceries, Rent, Transportation]
//	income:  [Salary, Freelance]
type CategoriesFile struct {
	Expense []string `yaml:"expense"`
	Income  []string `yaml:"income"`
}

// LoadCategoriesFile reads a category YAML file from disk.
func LoadCategoriesFile(path string) (*CategoriesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading categories: %w", err)
	}
	var f CategoriesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing categories: %w", err)
	}
	if len(f.Expense) == 0 && len(f.Income) == 0 {
		return nil, fmt.Errorf("categories file %s lists no categories", path)
	}
	return &f, nil
}

// SaveCategoriesFile writes f as YAML.
func SaveCategoriesFile(path string, f *CategoriesFile) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshaling categories: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing categories: %w", err)
	}
	return nil
}

// LoadCategories resolves the configured category set. CATEGORIES_FILE wins
// over CATEGORIES; with neither set the stock set is used.
func (c *Config) LoadCategories() (*core.Categories, error) {
	switch {
	case c.CategoriesFile != "":
		f, err := LoadCategoriesFile(c.CategoriesFile)
		if err != nil {
			return nil, err
		}
		return core.NewTypedCategories(f.Expense, f.Income), nil
	case len(c.Categories) > 0:
		return core.NewCategories(c.Categories...), nil
	}
	return core.DefaultCategories(), nil
}
