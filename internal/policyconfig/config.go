// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package policyconfig loads the gateway's tunables from the environment.
// Every key has a documented default so the gateway runs unconfigured in
// local development the same way it runs in production.
package policyconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every tunable recognized by the gateway. Values are bound
// once at startup and treated as read-only for the life of the process.
type Config struct {
	// Security
	SecurityEnabled         bool
	JailbreakBlockThreshold float64
	JailbreakWarnThreshold  float64
	MaxInputLength          int
	OutputValidationEnabled bool

	// Consent
	ConsentEnabled          bool
	ConsentGracePeriodDays  int
	ConsentExpirationMonths int
	CurrentPolicyVersion    string

	// Rate limiting
	UserPerMinute int
	UserPerDay    int
	OrgPerMinute  int
	OrgPerDay     int

	// Reconciliation / evaluation
	ConflictVarianceThreshold float64
	LowConfidenceThreshold    float64
	EvalMinScore              int
}

// Default returns the configuration with every documented default applied.
func Default() *Config {
	return &Config{
		SecurityEnabled:         true,
		JailbreakBlockThreshold: 0.8,
		JailbreakWarnThreshold:  0.5,
		MaxInputLength:          10000,
		OutputValidationEnabled: true,

		ConsentEnabled:          true,
		ConsentGracePeriodDays:  14,
		ConsentExpirationMonths: 12,
		CurrentPolicyVersion:    "1.0.0",

		UserPerMinute: 20,
		UserPerDay:    200,
		OrgPerMinute:  500,
		OrgPerDay:     5000,

		ConflictVarianceThreshold: 0.05,
		LowConfidenceThreshold:    0.7,
		EvalMinScore:              70,
	}
}

// LoadFromEnv returns Default() overlaid with any AI_* environment
// variables that are set. An unset or empty variable leaves the default in
// place; a set-but-unparsable variable is a startup error so misconfigured
// thresholds never silently fall back to a default that looks plausible.
func LoadFromEnv() (*Config, error) {
	c := Default()

	if err := bindBool("AI_SECURITY_ENABLED", &c.SecurityEnabled); err != nil {
		return nil, err
	}
	if err := bindFloat("AI_JAILBREAK_BLOCK_THRESHOLD", &c.JailbreakBlockThreshold); err != nil {
		return nil, err
	}
	if err := bindFloat("AI_JAILBREAK_WARN_THRESHOLD", &c.JailbreakWarnThreshold); err != nil {
		return nil, err
	}
	if err := bindInt("AI_MAX_INPUT_LENGTH", &c.MaxInputLength); err != nil {
		return nil, err
	}
	if err := bindBool("AI_OUTPUT_VALIDATION_ENABLED", &c.OutputValidationEnabled); err != nil {
		return nil, err
	}

	if err := bindBool("AI_CONSENT_ENABLED", &c.ConsentEnabled); err != nil {
		return nil, err
	}
	if err := bindInt("AI_CONSENT_GRACE_PERIOD_DAYS", &c.ConsentGracePeriodDays); err != nil {
		return nil, err
	}
	if err := bindInt("AI_CONSENT_EXPIRATION_MONTHS", &c.ConsentExpirationMonths); err != nil {
		return nil, err
	}
	if v := os.Getenv("AI_CONSENT_POLICY_VERSION"); v != "" {
		c.CurrentPolicyVersion = v
	}

	if err := bindInt("AI_RATE_LIMIT_USER_PER_MINUTE", &c.UserPerMinute); err != nil {
		return nil, err
	}
	if err := bindInt("AI_RATE_LIMIT_USER_PER_DAY", &c.UserPerDay); err != nil {
		return nil, err
	}
	if err := bindInt("AI_RATE_LIMIT_ORG_PER_MINUTE", &c.OrgPerMinute); err != nil {
		return nil, err
	}
	if err := bindInt("AI_RATE_LIMIT_ORG_PER_DAY", &c.OrgPerDay); err != nil {
		return nil, err
	}

	if err := bindFloat("AI_CONFLICT_VARIANCE_THRESHOLD", &c.ConflictVarianceThreshold); err != nil {
		return nil, err
	}
	if err := bindFloat("AI_LOW_CONFIDENCE_THRESHOLD", &c.LowConfidenceThreshold); err != nil {
		return nil, err
	}
	if err := bindInt("AI_EVAL_MIN_SCORE", &c.EvalMinScore); err != nil {
		return nil, err
	}

	return c, nil
}

func bindBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dst = b
	return nil
}

func bindInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dst = n
	return nil
}

func bindFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dst = f
	return nil
}

// MinuteWindow and DayWindow are the two time horizons the rate limiter
// tracks. They are not env-tunable; the spec fixes them at 60s and 86400s.
const (
	MinuteWindow = 60 * time.Second
	DayWindow    = 86400 * time.Second
)
