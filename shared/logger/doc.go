// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
Package logger provides structured JSON logging for the gateway.

# Overview

The logger package outputs one JSON object per log line to stdout, making
logs easily consumable by CloudWatch, ELK stack, or other log aggregation
systems.

Each log entry includes:
  - Timestamp (RFC3339Nano format)
  - Log level (INFO, WARN, ERROR)
  - Component name (gateway)
  - Instance ID and container name (for distributed tracing)
  - Client ID (the gateway passes the authenticated user ID)
  - Request ID (the gateway passes the deal ID, where one applies)
  - Custom fields

# Usage

Create a logger for your component:

	log := logger.New("gateway")

Log messages with caller-supplied context:

	log.Info("user-123", "deal-456", "extraction normalized", map[string]interface{}{
	    "documentType": "RENT_ROLL",
	})

internal/gateway wraps this in a requestLog helper that also folds in the
endpoint name, so call sites don't thread three parameters through every
log call individually.

# Output Format

Log entries are output as single-line JSON:

	{"timestamp":"2025-01-15T10:30:00.123456789Z","level":"INFO",
	 "component":"gateway","instance_id":"i-abc123","container":"gateway-xyz",
	 "client_id":"user-123","request_id":"deal-456",
	 "message":"extraction normalized","fields":{"documentType":"RENT_ROLL"}}

# Environment Variables

The logger reads these environment variables:

  - INSTANCE_ID: Deployment instance identifier
  - HOSTNAME: Container hostname (auto-detected)

# Thread Safety

Logger instances are safe for concurrent use from multiple goroutines.
*/
package logger
