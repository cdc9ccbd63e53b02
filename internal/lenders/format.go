package lenders

import (
	"fmt"
	"strings"

	"loancounselor-backend/internal/models"
)

// FormatLenders renders lenders as the short block inserted into the counselor prompt.
// Each lender becomes "<name>:\n- Interest Rate: ...\n- Maximum Amount: ...\n"; blocks are
// separated by a blank line.
func FormatLenders(lenders []models.Lender) string {
	blocks := make([]string, 0, len(lenders))
	for _, l := range lenders {
		blocks = append(blocks, fmt.Sprintf("%s:\n- Interest Rate: %s\n- Maximum Amount: %s\n",
			l.Name, l.InterestRate, l.MaximumAmount))
	}
	return strings.Join(blocks, "\n\n")
}

// FormatLender renders every known field of a lender. This is the text that gets embedded
// for similarity search, so it carries more than the prompt summary.
func FormatLender(l models.Lender) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n- Interest Rate: %s\n- Maximum Amount: %s\n", l.Name, l.InterestRate, l.MaximumAmount)
	if l.About != "" {
		fmt.Fprintf(&b, "- About: %s\n", l.About)
	}
	for _, p := range l.KeyPoints {
		fmt.Fprintf(&b, "- %s\n", p)
	}
	if l.Currency != "" {
		fmt.Fprintf(&b, "- Currency: %s\n", l.Currency)
	}
	fmt.Fprintf(&b, "- Collateral Required: %s\n", yesNo(l.CollateralRequired))
	fmt.Fprintf(&b, "- Non-Collateral Option: %s\n", yesNo(l.NonCollateralOption))
	fmt.Fprintf(&b, "- US Cosigner Required: %s\n", yesNo(l.USCosignerRequired))
	if l.Country != "" {
		fmt.Fprintf(&b, "- Lender Country: %s\n", l.Country)
	}
	if l.UniversityCountry != "" {
		fmt.Fprintf(&b, "- University Country: %s\n", l.UniversityCountry)
	}
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
