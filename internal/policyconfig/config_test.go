// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package policyconfig

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.True(t, c.SecurityEnabled)
	assert.Equal(t, 0.8, c.JailbreakBlockThreshold)
	assert.Equal(t, 0.5, c.JailbreakWarnThreshold)
	assert.Equal(t, 10000, c.MaxInputLength)
	assert.Equal(t, "1.0.0", c.CurrentPolicyVersion)
	assert.Equal(t, 20, c.UserPerMinute)
	assert.Equal(t, 5000, c.OrgPerDay)
	assert.Equal(t, 70, c.EvalMinScore)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("AI_JAILBREAK_BLOCK_THRESHOLD", "0.9")
	t.Setenv("AI_RATE_LIMIT_USER_PER_MINUTE", "5")
	t.Setenv("AI_CONSENT_POLICY_VERSION", "2.0.0")
	t.Setenv("AI_SECURITY_ENABLED", "false")

	c, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 0.9, c.JailbreakBlockThreshold)
	assert.Equal(t, 5, c.UserPerMinute)
	assert.Equal(t, "2.0.0", c.CurrentPolicyVersion)
	assert.False(t, c.SecurityEnabled)

	// Unset keys keep their default.
	assert.Equal(t, 200, c.UserPerDay)
}

func TestLoadFromEnv_InvalidValueErrors(t *testing.T) {
	t.Setenv("AI_MAX_INPUT_LENGTH", "not-a-number")
	_, err := LoadFromEnv()
	require.Error(t, err)
}

func TestLoadFile_OverlaysOntoBase(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "policy-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString(`
security:
  jailbreak_block_threshold: 0.95
rate_limit:
  user_per_minute: 7
consent:
  policy_version: "3.0.0"
`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	base := Default()
	require.NoError(t, LoadFile(f.Name(), base))

	assert.Equal(t, 0.95, base.JailbreakBlockThreshold)
	assert.Equal(t, 7, base.UserPerMinute)
	assert.Equal(t, "3.0.0", base.CurrentPolicyVersion)
	// Untouched fields keep their default.
	assert.Equal(t, 0.5, base.JailbreakWarnThreshold)
}

func TestLoadFile_MissingFile(t *testing.T) {
	err := LoadFile("/nonexistent/policy.yaml", Default())
	require.Error(t, err)
}
