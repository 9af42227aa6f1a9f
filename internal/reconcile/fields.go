// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package reconcile

import "strings"

// canonicalFields is the fixed vocabulary every raw field name is mapped
// into before cross-referencing.
const (
	FieldGrossPotentialRent  = "grossPotentialRent"
	FieldEffectiveGrossIncome = "effectiveGrossIncome"
	FieldNetOperatingIncome  = "netOperatingIncome"
	FieldVacancyRate         = "vacancyRate"
	FieldOperatingExpenses   = "operatingExpenses"
	FieldTotalUnits          = "totalUnits"
	FieldTotalSqft           = "totalSqft"
	FieldPurchasePrice       = "purchasePrice"
	FieldCapRate             = "capRate"
)

// aliases maps snake_case, camelCase, and common abbreviations onto the
// canonical vocabulary above. Lookups are case-insensitive.
var aliases = map[string]string{
	"gross_potential_rent": FieldGrossPotentialRent,
	"grosspotentialrent":   FieldGrossPotentialRent,
	"gpr":                  FieldGrossPotentialRent,

	"effective_gross_income": FieldEffectiveGrossIncome,
	"effectivegrossincome":   FieldEffectiveGrossIncome,
	"egi":                    FieldEffectiveGrossIncome,

	"net_operating_income": FieldNetOperatingIncome,
	"netoperatingincome":   FieldNetOperatingIncome,
	"noi":                  FieldNetOperatingIncome,

	"vacancy_rate": FieldVacancyRate,
	"vacancyrate":  FieldVacancyRate,
	"vacancy":      FieldVacancyRate,

	"operating_expenses": FieldOperatingExpenses,
	"operatingexpenses":  FieldOperatingExpenses,
	"opex":               FieldOperatingExpenses,

	"total_units": FieldTotalUnits,
	"totalunits":  FieldTotalUnits,
	"unit_count":  FieldTotalUnits,
	"units":       FieldTotalUnits,

	"total_sqft":      FieldTotalSqft,
	"totalsqft":       FieldTotalSqft,
	"square_feet":     FieldTotalSqft,
	"sqft":            FieldTotalSqft,

	"purchase_price": FieldPurchasePrice,
	"purchaseprice":  FieldPurchasePrice,
	"price":          FieldPurchasePrice,

	"cap_rate": FieldCapRate,
	"caprate":  FieldCapRate,
}

// NormalizeFieldName maps a raw field name (any of snake_case, camelCase,
// or a recognized abbreviation) onto its canonical form. Unrecognized
// names pass through unchanged so callers can still surface them (e.g.
// via logging) instead of silently dropping data.
func NormalizeFieldName(raw string) string {
	key := strings.ToLower(raw)
	if canonical, ok := aliases[key]; ok {
		return canonical
	}
	for _, canonical := range []string{
		FieldGrossPotentialRent, FieldEffectiveGrossIncome, FieldNetOperatingIncome,
		FieldVacancyRate, FieldOperatingExpenses, FieldTotalUnits, FieldTotalSqft,
		FieldPurchasePrice, FieldCapRate,
	} {
		if strings.EqualFold(raw, canonical) {
			return canonical
		}
	}
	return raw
}

// reliabilityRank is the fixed ordinal used to weight a document type's
// reported value against others when recommending a source.
var reliabilityRank = map[string]int{
	"T12":                  5,
	"RENT_ROLL":            4,
	"APPRAISAL":            3,
	"LOAN_DOCUMENTS":       3,
	"OPERATING_MEMORANDUM": 2,
	"BROKER_ANALYSIS":      1,
}

// ReliabilityRank returns the document type's fixed ordinal, or 0 for an
// unrecognized type (lowest possible weight, never wins a tie).
func ReliabilityRank(documentType string) int {
	return reliabilityRank[documentType]
}
