// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package policyconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileOverlay is the YAML shape accepted by LoadFile. Every field is
// optional; absent fields leave the existing value untouched.
type fileOverlay struct {
	Security struct {
		Enabled                 *bool    `yaml:"enabled"`
		JailbreakBlockThreshold *float64 `yaml:"jailbreak_block_threshold"`
		JailbreakWarnThreshold  *float64 `yaml:"jailbreak_warn_threshold"`
		MaxInputLength          *int     `yaml:"max_input_length"`
		OutputValidationEnabled *bool    `yaml:"output_validation_enabled"`
	} `yaml:"security"`
	Consent struct {
		Enabled          *bool   `yaml:"enabled"`
		GracePeriodDays  *int    `yaml:"grace_period_days"`
		ExpirationMonths *int    `yaml:"expiration_months"`
		PolicyVersion    *string `yaml:"policy_version"`
	} `yaml:"consent"`
	RateLimit struct {
		UserPerMinute *int `yaml:"user_per_minute"`
		UserPerDay    *int `yaml:"user_per_day"`
		OrgPerMinute  *int `yaml:"org_per_minute"`
		OrgPerDay     *int `yaml:"org_per_day"`
	} `yaml:"rate_limit"`
	Reconciliation struct {
		ConflictVarianceThreshold *float64 `yaml:"conflict_variance_threshold"`
		LowConfidenceThreshold    *float64 `yaml:"low_confidence_threshold"`
		EvalMinScore              *int     `yaml:"eval_min_score"`
	} `yaml:"reconciliation"`
}

// LoadFile overlays a YAML config file onto base; fields absent from the
// file leave base unchanged. It does not consult environment variables,
// and LoadFromEnv always starts from Default() without reading any file.
// The gateway's startup (NewServer) calls only LoadFromEnv, so the file
// overlay is not part of it.
func LoadFile(path string, base *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read policy config file: %w", err)
	}

	var overlay fileOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse policy config file: %w", err)
	}

	if v := overlay.Security.Enabled; v != nil {
		base.SecurityEnabled = *v
	}
	if v := overlay.Security.JailbreakBlockThreshold; v != nil {
		base.JailbreakBlockThreshold = *v
	}
	if v := overlay.Security.JailbreakWarnThreshold; v != nil {
		base.JailbreakWarnThreshold = *v
	}
	if v := overlay.Security.MaxInputLength; v != nil {
		base.MaxInputLength = *v
	}
	if v := overlay.Security.OutputValidationEnabled; v != nil {
		base.OutputValidationEnabled = *v
	}

	if v := overlay.Consent.Enabled; v != nil {
		base.ConsentEnabled = *v
	}
	if v := overlay.Consent.GracePeriodDays; v != nil {
		base.ConsentGracePeriodDays = *v
	}
	if v := overlay.Consent.ExpirationMonths; v != nil {
		base.ConsentExpirationMonths = *v
	}
	if v := overlay.Consent.PolicyVersion; v != nil {
		base.CurrentPolicyVersion = *v
	}

	if v := overlay.RateLimit.UserPerMinute; v != nil {
		base.UserPerMinute = *v
	}
	if v := overlay.RateLimit.UserPerDay; v != nil {
		base.UserPerDay = *v
	}
	if v := overlay.RateLimit.OrgPerMinute; v != nil {
		base.OrgPerMinute = *v
	}
	if v := overlay.RateLimit.OrgPerDay; v != nil {
		base.OrgPerDay = *v
	}

	if v := overlay.Reconciliation.ConflictVarianceThreshold; v != nil {
		base.ConflictVarianceThreshold = *v
	}
	if v := overlay.Reconciliation.LowConfidenceThreshold; v != nil {
		base.LowConfidenceThreshold = *v
	}
	if v := overlay.Reconciliation.EvalMinScore; v != nil {
		base.EvalMinScore = *v
	}

	return nil
}
