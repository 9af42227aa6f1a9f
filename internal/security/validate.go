// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package security

import (
	"encoding/json"
	"regexp"
)

// ExpectedType is the shape the caller expected the LLM response to take.
type ExpectedType string

const (
	ExpectedChat       ExpectedType = "chat"
	ExpectedJSON       ExpectedType = "json"
	ExpectedStructured ExpectedType = "structured"
)

// Severity ranks how risky a validation issue is.
type Severity string

const (
	SeverityNone   Severity = "none"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

var severityRank = map[Severity]int{
	SeverityNone:   0,
	SeverityLow:    1,
	SeverityMedium: 2,
	SeverityHigh:   3,
}

func maxSeverity(a, b Severity) Severity {
	if severityRank[b] > severityRank[a] {
		return b
	}
	return a
}

type outputPattern struct {
	issue    string
	regex    *regexp.Regexp
	severity Severity
	// chatOnly, when true, is skipped for json/structured expected types.
	chatOnly bool
}

var sqlInjectionPatterns = []outputPattern{
	{"sql_drop_table", regexp.MustCompile(`(?i)\bDROP\s+TABLE\b`), SeverityHigh, false},
	{"sql_delete_from", regexp.MustCompile(`(?i)\bDELETE\s+FROM\b`), SeverityHigh, false},
	{"sql_union_select", regexp.MustCompile(`(?i)\bUNION\s+SELECT\b`), SeverityHigh, false},
	{"sql_tautology", regexp.MustCompile(`(?i)'\s*OR\s+1\s*=\s*1\s*--`), SeverityHigh, false},
}

var codeInjectionPatterns = []outputPattern{
	{"code_eval_call", regexp.MustCompile(`\beval\s*\(`), SeverityMedium, true},
	{"code_exec_call", regexp.MustCompile(`\bexec\s*\(`), SeverityMedium, true},
	{"code_settimeout_string", regexp.MustCompile(`\bsetTimeout\s*\(\s*["']`), SeverityMedium, true},
	{"code_innerhtml_assignment", regexp.MustCompile(`\binnerHTML\s*=`), SeverityMedium, true},
	{"code_require_child_process", regexp.MustCompile(`require\(\s*["']child_process["']`), SeverityMedium, true},
}

var secretExfiltrationPatterns = []outputPattern{
	{"secret_rsa_private_key", regexp.MustCompile(`-----BEGIN (RSA|PGP|SSH) PRIVATE KEY-----`), SeverityHigh, false},
	{"secret_certificate", regexp.MustCompile(`-----BEGIN CERTIFICATE-----`), SeverityHigh, false},
	{"secret_api_key_assignment", regexp.MustCompile(`(?i)api[_-]?key\s*=\s*['"]?[A-Za-z0-9_\-]{20,}`), SeverityHigh, false},
	{"secret_password_assignment", regexp.MustCompile(`(?i)password\s*=\s*['"]?\S{6,}`), SeverityHigh, false},
}

// ValidationResult is the outcome of ValidateOutput.
type ValidationResult struct {
	Valid    bool
	Issues   []string
	Severity Severity
}

// ValidateOutput checks an LLM response against three pattern families
// (SQL-injection shapes, code-injection shapes, secret-exfiltration
// shapes) plus, for expectedType json, a full JSON-parse attempt.
func ValidateOutput(text string, expectedType ExpectedType) ValidationResult {
	var issues []string
	overall := SeverityNone

	check := func(patterns []outputPattern) {
		for _, p := range patterns {
			if p.chatOnly && expectedType != ExpectedChat {
				continue
			}
			if p.regex.MatchString(text) {
				issues = append(issues, p.issue)
				overall = maxSeverity(overall, p.severity)
			}
		}
	}

	check(sqlInjectionPatterns)
	check(codeInjectionPatterns)
	check(secretExfiltrationPatterns)

	if expectedType == ExpectedJSON {
		var js any
		if err := json.Unmarshal([]byte(text), &js); err != nil {
			issues = append(issues, "invalid_json_structure")
			overall = maxSeverity(overall, SeverityLow)
		}
	}

	return ValidationResult{
		Valid:    len(issues) == 0,
		Issues:   issues,
		Severity: overall,
	}
}
