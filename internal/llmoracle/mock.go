// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package llmoracle

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// MockOracle is a configurable Oracle for tests. Responses can be queued
// (first in, first consumed) so a test can assert on the BASE attempt and
// then the STRICT_REPAIR attempt receiving a different canned response.
type MockOracle struct {
	mu        sync.Mutex
	name      string
	responses []*Response
	err       error
	calls     []CallRecord
}

// CallRecord captures one Call invocation for test assertions.
type CallRecord struct {
	Messages []Message
	Opts     CallOptions
}

// NewMock returns a MockOracle named name. With no queued responses, Call
// returns a canned echo response built from the last user message.
func NewMock(name string) *MockOracle {
	return &MockOracle{name: name}
}

var _ Oracle = (*MockOracle)(nil)

// QueueResponse appends a response to be returned by successive Call
// invocations, in order.
func (m *MockOracle) QueueResponse(resp *Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
}

// SetError makes every subsequent Call return err, wrapped as transient if
// it isn't already ErrProviderUnavailable.
func (m *MockOracle) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockOracle) Name() string { return m.name }

func (m *MockOracle) Call(ctx context.Context, messages []Message, opts CallOptions) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, CallRecord{Messages: messages, Opts: opts})

	if m.err != nil {
		if !errors.Is(m.err, ErrProviderUnavailable) {
			return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, m.err)
		}
		return nil, m.err
	}

	if len(m.responses) > 0 {
		resp := m.responses[0]
		m.responses = m.responses[1:]
		return resp, nil
	}

	last := ""
	if len(messages) > 0 {
		last = messages[len(messages)-1].Content
	}
	return &Response{Raw: "mock response to: " + last, Model: "mock-model"}, nil
}

// Calls returns every recorded invocation, in order.
func (m *MockOracle) Calls() []CallRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CallRecord, len(m.calls))
	copy(out, m.calls)
	return out
}
