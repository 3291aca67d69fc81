// Package categories provides the category profile table used when no exact
// nutrient match exists. The default table is embedded; a YAML file with the
// same shape can replace it.
package categories

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/alchemorsel/mealsnap/internal/domain/nutrition"
	"github.com/alchemorsel/mealsnap/internal/ports/outbound"
	"gopkg.in/yaml.v3"
)

//go:embed categories.yaml
var defaultTable []byte

type document struct {
	Categories []struct {
		Name     string            `yaml:"name"`
		Keywords []string          `yaml:"keywords"`
		Profile  nutrition.Profile `yaml:"profile"`
	} `yaml:"categories"`
}

type keyword struct {
	phrase   string
	category int
}

// Table matches labels to categories by keyword.
type Table struct {
	categories []nutrition.Category
	keywords   []keyword
}

var _ outbound.CategoryProfileTable = (*Table)(nil)

// Default returns the embedded table.
func Default() (*Table, error) {
	return Parse(defaultTable)
}

// Load reads a table from path, or the embedded table when path is empty.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read category table: %w", err)
	}
	return Parse(data)
}

// Parse builds a table from YAML.
func Parse(data []byte) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse category table: %w", err)
	}
	if len(doc.Categories) == 0 {
		return nil, errors.New("category table is empty")
	}

	t := &Table{}
	for i, c := range doc.Categories {
		if c.Name == "" {
			return nil, fmt.Errorf("category %d has no name", i)
		}
		if err := c.Profile.Validate(); err != nil {
			return nil, fmt.Errorf("category %s: %w", c.Name, err)
		}
		if len(c.Keywords) == 0 {
			return nil, fmt.Errorf("category %s has no keywords", c.Name)
		}
		for _, kw := range c.Keywords {
			if phrase := normalize(kw); phrase != "" {
				t.keywords = append(t.keywords, keyword{phrase: phrase, category: i})
			}
		}
		t.categories = append(t.categories, nutrition.Category{
			Name:     c.Name,
			Keywords: c.Keywords,
			Profile:  c.Profile,
		})
	}
	return t, nil
}

// Match returns the category whose keyword appears in label as whole words.
// The longest keyword wins; ties go to the category listed first.
func (t *Table) Match(label string) (nutrition.Category, bool) {
	padded := " " + normalize(label) + " "
	best := -1
	bestLen := 0
	for _, kw := range t.keywords {
		if len(kw.phrase) <= bestLen {
			continue
		}
		if strings.Contains(padded, " "+kw.phrase+" ") {
			best, bestLen = kw.category, len(kw.phrase)
		}
	}
	if best < 0 {
		return nutrition.Category{}, false
	}
	return t.categories[best], true
}

// Len returns the number of categories.
func (t *Table) Len() int {
	return len(t.categories)
}

func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '-', '_', ',', '.', '(', ')', '/':
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
