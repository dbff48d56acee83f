package catalog

import (
	"fmt"
	"strings"
)

// Validate checks a single product record.
func Validate(p Product) error {
	if strings.TrimSpace(p.ID) == "" {
		return NewValidationError("id", p.ID, ErrMissingID)
	}
	if strings.TrimSpace(p.Name) == "" {
		return NewValidationError("name", p.Name, ErrMissingName)
	}
	if p.Price < 0 {
		return NewValidationError("price", fmt.Sprintf("%g", p.Price), ErrNegativePrice)
	}
	return nil
}

// ValidateAll checks every record and the id-uniqueness invariant across the
// batch. The first violation is returned; nothing is partially accepted.
func ValidateAll(products []Product) error {
	seen := make(map[string]struct{}, len(products))
	for i, p := range products {
		if err := Validate(p); err != nil {
			return fmt.Errorf("catalog: record %d: %w", i, err)
		}
		if _, ok := seen[p.ID]; ok {
			return fmt.Errorf("catalog: record %d: %w", i, NewValidationError("id", p.ID, ErrDuplicateID))
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}
