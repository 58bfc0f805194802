package market

import (
	"fmt"
	"strings"
)

// MaxCategoryLength bounds a category name.
const MaxCategoryLength = 120

// NormalizeCategory trims and validates a category name. Matching on the
// result is case-sensitive.
func NormalizeCategory(raw string) (string, error) {
	category := strings.TrimSpace(raw)
	if category == "" {
		return "", fmt.Errorf("category is required: %w", ErrInvalidInput)
	}
	if len(category) > MaxCategoryLength {
		return "", fmt.Errorf("category exceeds %d characters: %w", MaxCategoryLength, ErrInvalidInput)
	}
	return category, nil
}
