// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package security

// JailbreakResult is the outcome of DetectJailbreak.
type JailbreakResult struct {
	Score           float64
	Blocked         bool
	Warning         bool
	PatternsMatched []string
}

// DetectJailbreak scans text against the static pattern table and sums the
// weight of every pattern that matches, capped at 1.0. It always runs
// against the original input — not the sanitized form — so sanitization
// cannot be used to hide an override attempt from the scorer.
func DetectJailbreak(text string, blockThreshold, warnThreshold float64) JailbreakResult {
	if text == "" {
		return JailbreakResult{}
	}

	var sum float64
	var matched []string
	for _, p := range jailbreakPatterns {
		if p.Regex.MatchString(text) {
			sum += p.Weight
			matched = append(matched, p.Name)
		}
	}

	score := sum
	if score > 1.0 {
		score = 1.0
	}

	blocked := score >= blockThreshold
	warning := score >= warnThreshold && !blocked

	return JailbreakResult{
		Score:           score,
		Blocked:         blocked,
		Warning:         warning,
		PatternsMatched: matched,
	}
}
