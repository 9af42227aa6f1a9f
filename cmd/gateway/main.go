// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package main is the entry point for the AxonFlow AI Safety & Governance
// Gateway.
//
// The gateway sits in front of every LLM call a commercial real-estate
// underwriting platform makes: it enforces rate limits, user consent, and
// prompt-injection defenses around the call, then runs an extraction and
// conflict-reconciliation pipeline on the result.
//
// Usage:
//
//	./gateway
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8080)
//	DATABASE_URL - PostgreSQL connection string
//	JWT_SECRET - Secret used to verify the bearer tokens AuthN issues
//	REDIS_ADDR - Optional; enables the distributed rate limiter when set
//	LLM_PROVIDER_* - see internal/llmoracle for the oracle this binary wires
//	AI_* - see internal/policyconfig for every tunable threshold
package main

import (
	"os"

	"axonflow/platform/internal/gateway"
	"axonflow/platform/internal/llmoracle"
)

func main() {
	// The concrete LLM provider is an external collaborator the gateway
	// does not own (per the module's scope) — wire a real
	// llmoracle.Oracle implementation here for a production deployment.
	oracle := llmoracle.NewMock(getEnv("LLM_PROVIDER_NAME", "default"))
	gateway.Run(oracle)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
