// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package security

import "regexp"

// jailbreakPattern is a compile-time prompt-override detector. Weight
// contributes to the bounded jailbreak score; order is irrelevant since
// the score is a commutative sum capped at 1.0.
type jailbreakPattern struct {
	Name   string
	Regex  *regexp.Regexp
	Weight float64
}

// jailbreakPatterns is the static table scanned by DetectJailbreak. Names
// are unique and used verbatim in SecurityCheckResult.PatternsMatched.
var jailbreakPatterns = []jailbreakPattern{
	{
		Name:   "dan_jailbreak",
		Regex:  regexp.MustCompile(`(?i)\b(DAN|do\s+anything\s+now)\s+mode\b`),
		Weight: 0.5,
	},
	{
		Name:   "bypass_restrictions",
		Regex:  regexp.MustCompile(`(?i)\bbypass\s+(all\s+)?(restrictions|safety|guardrails|filters)\b`),
		Weight: 0.4,
	},
	{
		Name:   "ignore_instructions",
		Regex:  regexp.MustCompile(`(?i)\bignore\s+(all\s+)?(previous|prior|above|your)\s+instructions\b`),
		Weight: 0.45,
	},
	{
		Name:   "roleplay_override",
		Regex:  regexp.MustCompile(`(?i)\byou\s+are\s+now\s+(in\s+)?[a-z0-9_ ]{0,20}\s*mode\b`),
		Weight: 0.3,
	},
	{
		Name:   "system_prompt_leak",
		Regex:  regexp.MustCompile(`(?i)\b(reveal|print|show|repeat)\s+(your\s+)?(system\s+prompt|instructions|initial\s+prompt)\b`),
		Weight: 0.4,
	},
	{
		Name:   "pretend_no_rules",
		Regex:  regexp.MustCompile(`(?i)\bpretend\s+(you\s+have\s+)?no\s+(rules|restrictions|guidelines)\b`),
		Weight: 0.35,
	},
	{
		Name:   "developer_mode",
		Regex:  regexp.MustCompile(`(?i)\b(developer|debug|god|admin)\s+mode\s+(enabled|activated|on)\b`),
		Weight: 0.3,
	},
	{
		Name:   "jailbreak_keyword",
		Regex:  regexp.MustCompile(`(?i)\bjailbreak\b`),
		Weight: 0.25,
	},
	{
		Name:   "unfiltered_response",
		Regex:  regexp.MustCompile(`(?i)\b(respond|answer)\s+without\s+(any\s+)?(filter|censorship|restriction)\b`),
		Weight: 0.35,
	},
	{
		Name:   "hypothetical_escape",
		Regex:  regexp.MustCompile(`(?i)\bin\s+a\s+hypothetical\s+world\s+where\s+(there\s+are\s+)?no\s+rules\b`),
		Weight: 0.25,
	},
	{
		Name:   "override_safety",
		Regex:  regexp.MustCompile(`(?i)\boverride\s+(your\s+)?(safety|ethical)\s+(guidelines|protocols|training)\b`),
		Weight: 0.45,
	},
	{
		Name:   "sudo_command",
		Regex:  regexp.MustCompile(`(?i)\bsudo\b.{0,20}\b(unlock|enable|grant)\b`),
		Weight: 0.2,
	},
}
