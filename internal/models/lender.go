package models

import "slices"

// Lender describes a lending institution's terms. Read-only reference data.
type Lender struct {
	Name                string   `json:"name"`
	InterestRate        string   `json:"interest_rate"`
	MaximumAmount       string   `json:"maximum_amount"`
	About               string   `json:"about,omitempty"`
	KeyPoints           []string `json:"key_points,omitempty"`
	Currency            string   `json:"currency,omitempty"`
	CollateralRequired  bool     `json:"collateral_required"`
	NonCollateralOption bool     `json:"non_collateral_option"`
	USCosignerRequired  bool     `json:"us_cosigner_required"`
	Country             string   `json:"country,omitempty"`
	UniversityCountry   string   `json:"university_country,omitempty"`
}

// Clone returns a copy of l that shares no slices with it.
func (l Lender) Clone() Lender {
	l.KeyPoints = slices.Clone(l.KeyPoints)
	return l
}

// CloneLenders deep-copies a catalogue.
func CloneLenders(ls []Lender) []Lender {
	if ls == nil {
		return nil
	}
	out := make([]Lender, len(ls))
	for i, l := range ls {
		out[i] = l.Clone()
	}
	return out
}
