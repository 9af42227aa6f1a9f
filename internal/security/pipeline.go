// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package security implements the gateway's prompt-level defenses: input
// sanitization, jailbreak scoring, and output validation. The package is
// purely functional aside from logging — no shared state, safe for
// concurrent use by every in-flight request.
package security

import (
	"axonflow/platform/shared/logger"
)

// CheckResult is the transient per-request result of a security check.
type CheckResult struct {
	SanitizedInput  string
	WasModified     bool
	Modifications   []string
	JailbreakScore  float64
	PatternsMatched []string
	Blocked         bool
	Warning         string
}

// Options configures a single Check call; values typically come straight
// from policyconfig.Config.
type Options struct {
	MaxInputLength int
	BlockThreshold float64
	WarnThreshold  float64
}

// Pipeline runs sanitize -> detectJailbreak -> validateOutput. It holds no
// mutable state; the log field is the only dependency, and logging is
// best-effort (a nil Logger disables it).
type Pipeline struct {
	log *logger.Logger
}

// New creates a Pipeline. Pass nil to disable logging (e.g. in tests).
func New(log *logger.Logger) *Pipeline {
	return &Pipeline{log: log}
}

// Check orchestrates sanitize -> detectJailbreak(original) -> compose. When
// the input is blocked, the downstream caller must not be invoked; Check
// returns blocked=true and an error-safe result with no sanitized content
// echoed in any error path above it.
func (p *Pipeline) Check(clientID, requestID, text string, opts Options) CheckResult {
	sanitized := SanitizeInput(text, opts.MaxInputLength)
	jb := DetectJailbreak(text, opts.BlockThreshold, opts.WarnThreshold)

	result := CheckResult{
		SanitizedInput:  sanitized.Sanitized,
		WasModified:     sanitized.WasModified,
		Modifications:   sanitized.Modifications,
		JailbreakScore:  jb.Score,
		PatternsMatched: jb.PatternsMatched,
		Blocked:         jb.Blocked,
	}
	if jb.Warning {
		result.Warning = "input scored above the jailbreak warn threshold"
	}

	if p.log != nil {
		if jb.Blocked {
			p.log.Warn(clientID, requestID, "security pipeline blocked input", map[string]interface{}{
				"jailbreak_score":  jb.Score,
				"patterns_matched": jb.PatternsMatched,
			})
		} else if jb.Warning {
			p.log.Info(clientID, requestID, "security pipeline warned on input", map[string]interface{}{
				"jailbreak_score": jb.Score,
			})
		}
	}

	return result
}

// ValidateResponse runs ValidateOutput and logs high-severity findings.
// High severity does not block delivery in the default configuration —
// the caller may choose to redact, but the gateway answers once the model
// has produced a response.
func (p *Pipeline) ValidateResponse(clientID, requestID, text string, expectedType ExpectedType) ValidationResult {
	result := ValidateOutput(text, expectedType)
	if p.log != nil && result.Severity == SeverityHigh {
		p.log.Warn(clientID, requestID, "output validation found a high-severity issue", map[string]interface{}{
			"issues": result.Issues,
		})
	}
	return result
}
