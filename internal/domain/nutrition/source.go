package nutrition

// Source records which enrichment tier produced a profile.
type Source string

const (
	SourceExact           Source = "exact"
	SourceCategoryProfile Source = "category_profile"
	SourceDefault         Source = "default"
)

// IsValid reports whether s is one of the known tiers.
func (s Source) IsValid() bool {
	switch s {
	case SourceExact, SourceCategoryProfile, SourceDefault:
		return true
	}
	return false
}

// Category is a coarse food class with a typical per-100 g profile.
type Category struct {
	Name     string
	Keywords []string
	Profile  Profile
}
