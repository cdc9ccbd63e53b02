package lenders

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"loancounselor-backend/internal/models"
)

// ErrInvalidLender is returned when a lender record fails validation.
var ErrInvalidLender = errors.New("invalid lender record")

// Default returns the built-in lender catalogue.
func Default() []models.Lender {
	return []models.Lender{
		{
			Name:                "Axis Bank",
			InterestRate:        "10.5%",
			MaximumAmount:       "INR 20,000,000",
			About:               "Finance your studies abroad with Axis Bank's flexible loan amounts.",
			KeyPoints:           []string{"Processing fee up to 1% + GST", "Tenure up to 10 years"},
			Currency:            "INR",
			CollateralRequired:  true,
			NonCollateralOption: true,
			USCosignerRequired:  false,
			Country:             "India",
			UniversityCountry:   "Any",
		},
	}
}

// Validate checks a catalogue and trims names. Names must be non-empty and unique
// (case-insensitive) because the vector store keys lender documents by name.
func Validate(lenders []models.Lender) ([]models.Lender, error) {
	seen := make(map[string]struct{}, len(lenders))
	out := make([]models.Lender, 0, len(lenders))
	for i, l := range lenders {
		l.Name = strings.TrimSpace(l.Name)
		if l.Name == "" {
			return nil, fmt.Errorf("%w: lender at index %d has no name", ErrInvalidLender, i)
		}
		key := strings.ToLower(l.Name)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: duplicate lender name %q", ErrInvalidLender, l.Name)
		}
		seen[key] = struct{}{}
		out = append(out, l)
	}
	return out, nil
}

// LoadFile reads a JSON array of lenders from path.
func LoadFile(path string) ([]models.Lender, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lenders file %s: %w", path, err)
	}
	var lenders []models.Lender
	if err := json.Unmarshal(data, &lenders); err != nil {
		return nil, fmt.Errorf("failed to parse lenders file %s: %w", path, err)
	}
	return Validate(lenders)
}
