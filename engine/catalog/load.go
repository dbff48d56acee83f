package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Load reads a catalog file and decodes it as a JSON array of products.
// A missing file surfaces as fs.ErrNotExist so callers can choose to skip
// seeding; any other failure is a hard error.
func Load(path string) ([]Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}

	var products []Product
	if err := json.Unmarshal(data, &products); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "" {
			// Top-level value is not an array.
			return nil, fmt.Errorf("catalog: %s: %w", path, ErrNotArray)
		}
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	return products, nil
}
