package categories

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTable_Match(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)

	tests := []struct {
		label string
		want  string
	}{
		{"chicken breast", "poultry"},
		{"Grilled Chicken-Breast", "poultry"},
		{"eggs", "eggs"},
		{"scrambled eggs", "eggs"},
		{"tomato sauce", "sauces"},
		{"tomatoes", "vegetables"},
		{"cottage cheese", "dairy"},
		{"parmesan cheese", "cheese"},
		{"baked salmon", "fatty_fish"},
		{"spaghetti", "pasta_cooked"},
		{"french fries", "fried_potatoes"},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			c, ok := table.Match(tt.label)
			require.True(t, ok)
			assert.Equal(t, tt.want, c.Name)
			assert.Greater(t, c.Profile.Calories, 0.0)
		})
	}
}

func TestDefaultTable_WholeWordsOnly(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)

	_, ok := table.Match("eggplant")
	assert.False(t, ok)
	_, ok = table.Match("mystery dish")
	assert.False(t, ok)
}

func TestDefaultTable_ProfilesAreConsistent(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)
	require.Greater(t, table.Len(), 10)

	for _, c := range table.categories {
		implied := c.Profile.MacroCalories()
		require.Greater(t, implied, 0.0, c.Name)
		assert.LessOrEqual(t, math.Abs(c.Profile.Calories-implied)/implied, 0.18, c.Name)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"Empty":      "categories: []",
		"NoName":     "categories:\n  - keywords: [x]\n    profile: {calories: 1}",
		"NoKeywords": "categories:\n  - name: x\n    profile: {calories: 1}",
		"Negative":   "categories:\n  - name: x\n    keywords: [x]\n    profile: {calories: -1}",
		"NotYAML":    "categories: [",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cats.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
categories:
  - name: soup
    keywords: [soup]
    profile: {calories: 50, protein_g: 2, carbs_g: 7, fat_g: 1.5}
`), 0o600))

	table, err := Load(path)
	require.NoError(t, err)
	c, ok := table.Match("lentil soup")
	require.True(t, ok)
	assert.Equal(t, "soup", c.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
