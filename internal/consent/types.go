// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package consent implements the GDPR-grade consent lifecycle: versioned
// policy, grace periods, per-feature toggles, and an append-only audit
// trail.
package consent

import "time"

// Feature is a per-feature consent toggle.
type Feature string

const (
	FeatureDealParsing      Feature = "dealParsing"
	FeatureChatAssistant    Feature = "chatAssistant"
	FeatureDocumentAnalysis Feature = "documentAnalysis"
	FeatureInsights         Feature = "insights"
)

// IsValid reports whether f is one of the recognized feature toggles.
func (f Feature) IsValid() bool {
	switch f {
	case FeatureDealParsing, FeatureChatAssistant, FeatureDocumentAnalysis, FeatureInsights:
		return true
	default:
		return false
	}
}

// Method is how consent was obtained.
type Method string

const (
	MethodUI           Method = "UI"
	MethodGrandfathered Method = "GRANDFATHERED"
)

// gracePeriodVersion is the sentinel consentVersion stamped on records
// created by CreateGracePeriod. It is short-circuited before the
// version-equality check in Check so grace-period holders are never
// bounced into the policy_updated branch once ConsentGiven flips true.
const gracePeriodVersion = "PRE_CONSENT"

// FeatureToggles holds the four per-feature booleans.
type FeatureToggles struct {
	DealParsing      bool
	ChatAssistant    bool
	DocumentAnalysis bool
	Insights         bool
}

// Get returns the toggle value for f, or false for an invalid feature
// (check with Feature.IsValid first to tell the two apart).
func (t FeatureToggles) Get(f Feature) bool {
	switch f {
	case FeatureDealParsing:
		return t.DealParsing
	case FeatureChatAssistant:
		return t.ChatAssistant
	case FeatureDocumentAnalysis:
		return t.DocumentAnalysis
	case FeatureInsights:
		return t.Insights
	default:
		return false
	}
}

// Set returns a copy of t with f set to allowed.
func (t FeatureToggles) Set(f Feature, allowed bool) FeatureToggles {
	switch f {
	case FeatureDealParsing:
		t.DealParsing = allowed
	case FeatureChatAssistant:
		t.ChatAssistant = allowed
	case FeatureDocumentAnalysis:
		t.DocumentAnalysis = allowed
	case FeatureInsights:
		t.Insights = allowed
	}
	return t
}

func allFeatures(allowed bool) FeatureToggles {
	return FeatureToggles{
		DealParsing:      allowed,
		ChatAssistant:    allowed,
		DocumentAnalysis: allowed,
		Insights:         allowed,
	}
}

// Record is one per user. It is never deleted — GDPR requires the history
// to remain auditable even after withdrawal.
type Record struct {
	UserID         string
	OrganizationID string
	ConsentGiven   bool
	ConsentVersion string
	ConsentedAt    time.Time
	WithdrawnAt    *time.Time
	ExpiresAt      *time.Time
	Features       FeatureToggles
	ConsentMethod  Method
	IPAddress      string
	UserAgent      string
}

// Action identifies what a ConsentAudit entry records.
type Action string

const (
	ActionConsentGiven     Action = "CONSENT_GIVEN"
	ActionConsentWithdrawn Action = "CONSENT_WITHDRAWN"
	ActionFeatureToggled   Action = "FEATURE_TOGGLED"
)

// Audit is one append-only entry per consent mutation.
type Audit struct {
	UserID        string
	ConsentID     string
	Action        Action
	PolicyVersion string
	BeforeState   map[string]any
	AfterState    map[string]any
	IPAddress     string
	UserAgent     string
	Reason        string
	CreatedAt     time.Time
}

// GrantOptions customizes Grant; all fields are optional.
type GrantOptions struct {
	AllowDealParsing      *bool
	AllowChatAssistant    *bool
	AllowDocumentAnalysis *bool
	AllowInsights         *bool
	IPAddress             string
	UserAgent             string
}

func (o GrantOptions) toggles() FeatureToggles {
	t := allFeatures(true)
	if o.AllowDealParsing != nil {
		t.DealParsing = *o.AllowDealParsing
	}
	if o.AllowChatAssistant != nil {
		t.ChatAssistant = *o.AllowChatAssistant
	}
	if o.AllowDocumentAnalysis != nil {
		t.DocumentAnalysis = *o.AllowDocumentAnalysis
	}
	if o.AllowInsights != nil {
		t.Insights = *o.AllowInsights
	}
	return t
}

// CheckResult is the outcome of Check.
type CheckResult struct {
	Valid           bool
	Reason          string
	RequiresConsent bool
	Record          *Record
}

// Status is the derived view returned by GetStatus.
type Status struct {
	HasConsent        bool
	RequiresConsent   bool
	RequiresReconsent bool
	InGracePeriod     bool
	Record            *Record
}
