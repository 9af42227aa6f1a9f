// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

// requestLog carries the three identifiers every gateway log line wants —
// the authenticated user, the deal it concerns, and the endpoint handling
// it — so call sites pass one value instead of threading clientID/
// requestID positionally the way shared/logger's raw API expects.
type requestLog struct {
	userID   string
	dealID   string
	endpoint string
}

func (h *Handler) logError(rl requestLog, message string, fields map[string]interface{}) {
	if h.log == nil {
		return
	}
	h.log.Error(rl.userID, rl.dealID, message, withEndpoint(rl.endpoint, fields))
}

func (h *Handler) logWarn(rl requestLog, message string, fields map[string]interface{}) {
	if h.log == nil {
		return
	}
	h.log.Warn(rl.userID, rl.dealID, message, withEndpoint(rl.endpoint, fields))
}

func withEndpoint(endpoint string, fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["endpoint"] = endpoint
	return out
}
